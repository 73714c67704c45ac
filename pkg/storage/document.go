package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/types"
)

// DefaultAttempts bounds optimistic-concurrency retries before an update
// fails with concurrent-modification.
const DefaultAttempts = 3

// Revisioned is implemented by documents carrying an in-file revision
// counter used to detect concurrent external edits.
type Revisioned interface {
	GetRevision() int
	SetRevision(rev int)
}

// Load reads the JSON document at path into doc. A missing file leaves doc
// untouched (callers start from the zero document). Invalid JSON is backed
// up to path + ".bad.<ts>" and treated as absent; corrupt reports that the
// caller should surface a warning.
func Load(path string, doc any) (corrupt bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		backup := fmt.Sprintf("%s.bad.%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return false, fmt.Errorf("back up corrupt %s: %w", path, renameErr)
		}
		log.WithComponent("storage").Warn().
			Str("path", path).
			Str("backup", backup).
			Err(err).
			Msg("document is corrupt, backed up and reset")
		return true, nil
	}
	return false, nil
}

// Write atomically replaces path with the JSON encoding of doc via a
// temp-file-then-rename, so readers never observe a partial document.
func Write(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// Update applies mutate to the document at path under optimistic
// concurrency. Each attempt loads a fresh document through newDoc, runs
// mutate against it, bumps the revision, and re-checks the on-disk
// revision before the atomic write. An external writer moving the revision
// between load and write triggers a retry; retries exhausted yield
// concurrent-modification.
func Update(path string, newDoc func() Revisioned, mutate func(doc Revisioned) error) error {
	for attempt := 0; attempt < DefaultAttempts; attempt++ {
		doc := newDoc()
		if _, err := Load(path, doc); err != nil {
			return err
		}
		loadedRev := doc.GetRevision()

		if err := mutate(doc); err != nil {
			return err
		}
		doc.SetRevision(loadedRev + 1)

		// Re-check for an external edit since our load. The window
		// between check and rename is accepted: external writers are
		// other processes editing by hand, not a hot path.
		current := newDoc()
		if _, err := Load(path, current); err != nil {
			return err
		}
		if current.GetRevision() != loadedRev {
			log.WithComponent("storage").Debug().
				Str("path", path).
				Int("expected", loadedRev).
				Int("found", current.GetRevision()).
				Msg("revision moved, retrying update")
			continue
		}

		return Write(path, doc)
	}
	return types.NewCodedError(types.CodeConcurrentModification,
		"update of %s lost the revision race %d times", path, DefaultAttempts)
}
