package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/metrics"
	"github.com/hackstack/hack/pkg/types"
)

// DefaultQueueSize bounds each reader's outbound queue.
const DefaultQueueSize = 4096

// EventType discriminates the events a reader receives.
type EventType string

const (
	EventStart EventType = "start"
	EventLog   EventType = "log"
	EventError EventType = "error"
	EventEnd   EventType = "end"
)

// Event is one element of a reader's stream, serialized as a single JSON
// line on the wire.
type Event struct {
	Type    EventType       `json:"type"`
	Context *Selector       `json:"context,omitempty"`
	Entry   *types.LogEntry `json:"entry,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Selector scopes a log stream request.
type Selector struct {
	Project  string    `json:"project,omitempty"`
	Services []string  `json:"services,omitempty"`
	Tail     int       `json:"tail,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Follow   bool      `json:"follow,omitempty"`
}

func (s *Selector) wantsService(name string) bool {
	if len(s.Services) == 0 {
		return true
	}
	for _, svc := range s.Services {
		if svc == name {
			return true
		}
	}
	return false
}

// Reader is one consumer's bounded outbound queue. The pipeline is the
// sole producer. When the queue is full, the oldest log event is dropped
// and a drop marker takes its place; start and end events are never
// dropped.
type Reader struct {
	mu     sync.Mutex
	queue  []Event
	max    int
	marker int // count behind the current drop marker
	closed bool
	notify chan struct{}
}

func newReader(queueSize int) *Reader {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Reader{
		max:    queueSize,
		notify: make(chan struct{}, 1),
	}
}

// Next blocks until an event is available or ctx expires. After the end
// event has been consumed, Next reports false.
func (r *Reader) Next(ctx context.Context) (Event, bool) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			if strings.HasPrefix(ev.Reason, "dropped:") {
				r.marker = 0
			}
			r.mu.Unlock()
			return ev, true
		}
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return Event{}, false
		}

		select {
		case <-r.notify:
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

func (r *Reader) push(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if ev.Type == EventLog && len(r.queue) >= r.max {
		r.dropOldest()
	}
	r.queue = append(r.queue, ev)
	if ev.Type == EventEnd {
		r.closed = true
	}

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// dropOldest removes the oldest queued log event, replacing it with (or
// folding it into) an error event carrying the running drop count.
func (r *Reader) dropOldest() {
	for i := range r.queue {
		if r.queue[i].Type != EventLog {
			continue
		}
		metrics.LogEventsDroppedTotal.Inc()
		if i > 0 && r.queue[i-1].Type == EventError && strings.HasPrefix(r.queue[i-1].Reason, "dropped:") {
			r.marker++
			r.queue[i-1].Reason = fmt.Sprintf("dropped:%d", r.marker)
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
		} else {
			r.marker = 1
			r.queue[i] = Event{Type: EventError, Reason: "dropped:1"}
		}
		return
	}
}

// Source feeds entries into a stream session. Run blocks until the source
// is exhausted or ctx is canceled; the returned reason becomes the end
// event ("eof", "exit:<code>").
type Source interface {
	Run(ctx context.Context, emit func(types.LogEntry)) (reason string, err error)
}

// Pipeline turns sources into per-reader event streams.
type Pipeline struct {
	store     *StoreClient // nil when no log store is configured
	runtime   RuntimeSourceFactory
	queueSize int
}

// RuntimeSourceFactory builds a live container-runtime source for a
// selector.
type RuntimeSourceFactory func(sel Selector) Source

// NewPipeline creates a pipeline. store may be nil.
func NewPipeline(runtime RuntimeSourceFactory, store *StoreClient, queueSize int) *Pipeline {
	return &Pipeline{runtime: runtime, store: store, queueSize: queueSize}
}

// Stream opens a reader for sel and starts feeding it. History requested
// via Tail or Since drains synchronously from the log store before the
// live source starts; entries seen in both the window and the live
// overlap are delivered once.
func (p *Pipeline) Stream(ctx context.Context, sel Selector) *Reader {
	reader := newReader(p.queueSize)
	metrics.LogReadersActive.Inc()

	go func() {
		defer metrics.LogReadersActive.Dec()

		selCopy := sel
		reader.push(Event{Type: EventStart, Context: &selCopy})

		seen := p.replay(ctx, sel, reader)
		reason := p.live(ctx, sel, reader, seen)
		reader.push(Event{Type: EventEnd, Reason: reason})
	}()
	return reader
}

// replay drains the requested history window from the store and returns
// the dedup index for the live overlap.
func (p *Pipeline) replay(ctx context.Context, sel Selector, reader *Reader) map[dedupKey]bool {
	if p.store == nil || (sel.Tail <= 0 && sel.Since.IsZero()) {
		return nil
	}

	entries, err := p.store.Query(ctx, sel)
	if err != nil {
		log.WithComponent("logs").Warn().Err(err).Msg("log store replay failed")
		reader.push(Event{Type: EventError, Reason: "replay: " + err.Error()})
		return nil
	}

	seen := make(map[dedupKey]bool, len(entries))
	for _, entry := range entries {
		if !sel.wantsService(entry.Service) {
			continue
		}
		seen[keyOf(entry)] = true
		e := entry
		reader.push(Event{Type: EventLog, Entry: &e})
	}
	return seen
}

// live runs the runtime source, suppressing the first occurrence of any
// entry already delivered by replay.
func (p *Pipeline) live(ctx context.Context, sel Selector, reader *Reader, seen map[dedupKey]bool) string {
	if p.runtime == nil {
		return "eof"
	}
	source := p.runtime(sel)

	reason, err := source.Run(ctx, func(entry types.LogEntry) {
		if !sel.wantsService(entry.Service) {
			return
		}
		key := keyOf(entry)
		if seen[key] {
			delete(seen, key)
			return
		}
		e := entry
		reader.push(Event{Type: EventLog, Entry: &e})
	})
	if err != nil {
		reader.push(Event{Type: EventError, Reason: err.Error()})
	}
	if reason == "" {
		reason = "eof"
	}
	return reason
}

// dedupKey identifies an entry across the replay window and the live
// stream.
type dedupKey struct {
	service   string
	timestamp int64
	message   string
}

func keyOf(entry types.LogEntry) dedupKey {
	key := dedupKey{service: entry.Service, message: entry.Message}
	if entry.Timestamp != nil {
		key.timestamp = entry.Timestamp.UnixNano()
	}
	return key
}
