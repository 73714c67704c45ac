package status

import (
	"os"
	"sync"
	"time"

	"github.com/hackstack/hack/pkg/storage"
	"github.com/hackstack/hack/pkg/types"
)

// countersDoc is the runtime-health sidecar document. It survives daemon
// restarts so reset counts reflect the machine's history, not one
// process's.
type countersDoc struct {
	OK         bool       `json:"ok"`
	LastOkAt   *time.Time `json:"lastOkAt,omitempty"`
	ResetAt    *time.Time `json:"resetAt,omitempty"`
	ResetCount int        `json:"resetCount"`
}

// counterStore serializes counter updates. The status section is the sole
// writer; the lock orders concurrent snapshot requests.
type counterStore struct {
	path string
	mu   sync.Mutex
}

func newCounterStore(path string) *counterStore {
	return &counterStore{path: path}
}

// observe folds one runtime-health observation into the persisted
// counters and returns the resulting section. reset reports a false→true
// transition. A write failure degrades to in-memory state for this
// snapshot.
func (c *counterStore) observe(ok bool, now time.Time) (section types.RuntimeSection, reset bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, statErr := os.Stat(c.path)
	existed := statErr == nil

	var doc countersDoc
	if _, loadErr := storage.Load(c.path, &doc); loadErr != nil {
		err = loadErr
		doc = countersDoc{}
		existed = false
	}

	if ok {
		if existed && !doc.OK {
			// Recovery from a previously observed outage.
			doc.ResetCount++
			at := now
			doc.ResetAt = &at
			reset = true
		}
		at := now
		doc.LastOkAt = &at
	}
	doc.OK = ok

	if writeErr := storage.Write(c.path, &doc); writeErr != nil && err == nil {
		err = writeErr
	}

	section = types.RuntimeSection{
		OK:            doc.OK,
		LastCheckedAt: now,
		LastOkAt:      doc.LastOkAt,
		ResetAt:       doc.ResetAt,
		ResetCount:    doc.ResetCount,
	}
	return section, reset, err
}
