package registry

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/storage"
	"github.com/hackstack/hack/pkg/types"
)

// document is the on-disk shape of registry.json.
type document struct {
	Revision int              `json:"revision"`
	Projects []*types.Project `json:"projects"`
}

func (d *document) GetRevision() int    { return d.Revision }
func (d *document) SetRevision(rev int) { d.Revision = rev }

// byName resolves a slug case-insensitively within the document.
func (d *document) byName(name string) *types.Project {
	folded := strings.ToLower(name)
	for _, p := range d.Projects {
		if strings.ToLower(p.Name) == folded {
			return p
		}
	}
	return nil
}

// UpsertStatus is the outcome of an Upsert call.
type UpsertStatus string

const (
	StatusInserted UpsertStatus = "inserted"
	StatusUpdated  UpsertStatus = "updated"
	StatusConflict UpsertStatus = "conflict"
)

// UpsertResult carries the outcome plus, on conflict, both records so the
// caller can show the user what collided.
type UpsertResult struct {
	Status    UpsertStatus   `json:"status"`
	Project   *types.Project `json:"project,omitempty"`
	Incumbent *types.Project `json:"incumbent,omitempty"`
	Incoming  *types.Project `json:"incoming,omitempty"`
}

// ProjectContext describes the project a caller is touching.
type ProjectContext struct {
	RepoRoot          string
	ProjectDir        string
	Name              string // optional explicit slug; basename of RepoRoot otherwise
	DevHost           string
	ConfigFingerprint string
}

// Store is the durable project catalog. All mutations go through an
// in-process lock plus the storage layer's revision check, so writes are
// totally ordered and external edits are detected.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore creates a registry store persisting to path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

var slugStrip = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify derives the catalog slug for a project context: the explicit
// name when given, the repo root basename otherwise, folded to the
// [a-z0-9-] alphabet.
func Slugify(pc ProjectContext) string {
	name := pc.Name
	if name == "" {
		name = filepath.Base(pc.RepoRoot)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	name = slugStrip.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

// Upsert registers or refreshes the project described by pc.
//
// Same slug with the same repo root touches lastSeenAt and refreshes the
// mutable attributes. Same slug with a different repo root is a conflict:
// the incumbent is never overwritten and the document is not written at
// all, so the on-disk revision is unchanged. Anything else inserts a fresh
// record with a newly minted id.
func (s *Store) Upsert(pc ProjectContext) (*UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := Slugify(pc)
	now := s.now()
	var result *UpsertResult

	err := storage.Update(s.path, newDocument, func(raw storage.Revisioned) error {
		doc := raw.(*document)

		if existing := doc.byName(slug); existing != nil {
			if existing.RepoRoot != pc.RepoRoot {
				incumbent := *existing
				result = &UpsertResult{
					Status:    StatusConflict,
					Incumbent: &incumbent,
					Incoming: &types.Project{
						Name:       slug,
						RepoRoot:   pc.RepoRoot,
						ProjectDir: pc.ProjectDir,
						DevHost:    pc.DevHost,
					},
				}
				// Conflicts must not move the revision.
				return types.NewCodedError(types.CodeProjectConflict,
					"project %q already maps to %s", slug, incumbent.RepoRoot)
			}

			existing.LastSeenAt = now
			existing.ProjectDir = pc.ProjectDir
			if pc.DevHost != "" {
				existing.DevHost = pc.DevHost
			}
			if pc.ConfigFingerprint != "" {
				existing.ConfigFingerprint = pc.ConfigFingerprint
			}
			updated := *existing
			result = &UpsertResult{Status: StatusUpdated, Project: &updated}
			return nil
		}

		project := &types.Project{
			ID:                uuid.New().String(),
			Name:              slug,
			RepoRoot:          pc.RepoRoot,
			ProjectDir:        pc.ProjectDir,
			DevHost:           pc.DevHost,
			ConfigFingerprint: pc.ConfigFingerprint,
			FirstSeenAt:       now,
			LastSeenAt:        now,
		}
		doc.Projects = append(doc.Projects, project)
		inserted := *project
		result = &UpsertResult{Status: StatusInserted, Project: &inserted}
		return nil
	})

	if err != nil {
		if result != nil && result.Status == StatusConflict {
			log.WithComponent("registry").Warn().
				Str("name", slug).
				Str("incumbent", result.Incumbent.RepoRoot).
				Str("incoming", pc.RepoRoot).
				Msg("upsert rejected, slug already claimed")
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

// ResolveByName looks up a project by slug, case-insensitively. A missing
// slug returns nil without error.
func (s *Store) ResolveByName(name string) (*types.Project, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if p := doc.byName(name); p != nil {
		clone := *p
		return &clone, nil
	}
	return nil, nil
}

// Get returns the project with the given id, or nil.
func (s *Store) Get(id string) (*types.Project, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, p := range doc.Projects {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

// Remove deletes the entries whose ids are listed. Unknown ids are
// ignored.
func (s *Store) Remove(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	return storage.Update(s.path, newDocument, func(raw storage.Revisioned) error {
		doc := raw.(*document)
		kept := doc.Projects[:0]
		for _, p := range doc.Projects {
			if !drop[p.ID] {
				kept = append(kept, p)
			}
		}
		doc.Projects = kept
		return nil
	})
}

// List returns all projects sorted by case-folded name.
func (s *Store) List() ([]*types.Project, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Project, 0, len(doc.Projects))
	for _, p := range doc.Projects {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *Store) load() (*document, error) {
	doc := &document{}
	corrupt, err := storage.Load(s.path, doc)
	if err != nil {
		return nil, err
	}
	if corrupt {
		// The storage layer already backed the file up; start empty.
		*doc = document{}
	}
	return doc, nil
}

func newDocument() storage.Revisioned { return &document{} }
