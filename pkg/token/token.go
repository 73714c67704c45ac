package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/storage"
	"github.com/hackstack/hack/pkg/types"
)

// document is the on-disk shape of tokens.json. Salt is minted once per
// install and mixed into every digest.
type document struct {
	Revision int                   `json:"revision"`
	Salt     string                `json:"salt"`
	Tokens   []*types.GatewayToken `json:"tokens"`
}

func (d *document) GetRevision() int    { return d.Revision }
func (d *document) SetRevision(rev int) { d.Revision = rev }

// MintRequest describes the token to create.
type MintRequest struct {
	Label     string
	Scope     types.TokenScope
	ProjectID string
}

// MintResult pairs the stored record with the plaintext secret. The
// secret exists only here; it is never persisted.
type MintResult struct {
	Record *types.GatewayToken `json:"record"`
	Secret string              `json:"secret"`
}

// Store is the durable gateway credential catalog. Mutations are totally
// ordered by an in-process lock separate from the registry's.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore creates a token store persisting to path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Mint generates a fresh 256-bit secret, stores its salted digest, and
// returns the record plus the plaintext exactly once. When the request
// names a non-empty label already live for the same project, the prior
// token is revoked within the same atomic write.
func (s *Store) Mint(req MintRequest) (*MintResult, error) {
	if !req.Scope.Valid() {
		return nil, types.NewCodedError(types.CodeInvalidScope, "scope must be read or write, got %q", req.Scope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(raw)

	now := s.now()
	var record types.GatewayToken

	err := storage.Update(s.path, newDocument, func(rawDoc storage.Revisioned) error {
		doc := rawDoc.(*document)
		if doc.Salt == "" {
			salt := make([]byte, 16)
			if _, err := rand.Read(salt); err != nil {
				return fmt.Errorf("generate salt: %w", err)
			}
			doc.Salt = hex.EncodeToString(salt)
		}

		// One live token per (projectId, label) pair when labeled.
		if req.Label != "" {
			for _, t := range doc.Tokens {
				if !t.Revoked() && t.Label == req.Label && t.ProjectID == req.ProjectID {
					revoked := now
					t.RevokedAt = &revoked
					log.WithComponent("token").Info().
						Str("id", t.ID).
						Str("label", t.Label).
						Msg("revoking prior token with same label")
				}
			}
		}

		record = types.GatewayToken{
			ID:        uuid.New().String(),
			Label:     req.Label,
			Scope:     req.Scope,
			Hash:      digest(doc.Salt, secret),
			ProjectID: req.ProjectID,
			CreatedAt: now,
		}
		doc.Tokens = append(doc.Tokens, &record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	clone := record
	return &MintResult{Record: &clone, Secret: secret}, nil
}

// Verify checks a presented secret against every non-revoked record using
// a constant-time compare per record. The walk never short-circuits on a
// match, so verification time depends only on the record count.
func (s *Store) Verify(secret string) (*types.GatewayToken, bool) {
	doc, err := s.load()
	if err != nil {
		return nil, false
	}

	presented := []byte(digest(doc.Salt, secret))
	var matched *types.GatewayToken
	for _, t := range doc.Tokens {
		if t.Revoked() {
			continue
		}
		if subtle.ConstantTimeCompare(presented, []byte(t.Hash)) == 1 {
			clone := *t
			matched = &clone
		}
	}
	return matched, matched != nil
}

// List returns all records oldest first, revoked entries included.
// Secrets are not recoverable from records.
func (s *Store) List() ([]*types.GatewayToken, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*types.GatewayToken, 0, len(doc.Tokens))
	for _, t := range doc.Tokens {
		clone := *t
		out = append(out, &clone)
	}
	return out, nil
}

// Revoke marks the token revoked. Revoking an already-revoked token is a
// no-op; an unknown id fails with unknown-token.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	return storage.Update(s.path, newDocument, func(rawDoc storage.Revisioned) error {
		doc := rawDoc.(*document)
		for _, t := range doc.Tokens {
			if t.ID != id {
				continue
			}
			if t.RevokedAt == nil {
				revoked := now
				t.RevokedAt = &revoked
			}
			return nil
		}
		return types.NewCodedError(types.CodeUnknownToken, "no token with id %q", id)
	})
}

// Counts returns (live, total) token counts for the status gateway section.
func (s *Store) Counts() (live, total int, err error) {
	doc, err := s.load()
	if err != nil {
		return 0, 0, err
	}
	for _, t := range doc.Tokens {
		total++
		if !t.Revoked() {
			live++
		}
	}
	return live, total, nil
}

func (s *Store) load() (*document, error) {
	doc := &document{}
	corrupt, err := storage.Load(s.path, doc)
	if err != nil {
		return nil, err
	}
	if corrupt {
		*doc = document{}
	}
	return doc, nil
}

// digest is the persisted fingerprint of a secret: SHA-256 over the
// per-install salt concatenated with the plaintext.
func digest(salt, secret string) string {
	h := sha256.Sum256([]byte(salt + secret))
	return hex.EncodeToString(h[:])
}

func newDocument() storage.Revisioned { return &document{} }
