package events

import (
	"sync"
	"time"
)

// Change notifies subscribers that a new status snapshot version exists.
// Clients pull the snapshot themselves; the event only carries the
// version so a slow client never holds stale aggregate data.
type Change struct {
	Type      string    `json:"type"` // always "changed"
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber is a channel that receives change events.
type Subscriber chan Change

// Broker fans status-change notifications out to connected event streams.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan Change
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a change broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Change, 64),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 16)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish announces a new snapshot version to all subscribers.
func (b *Broker) Publish(version uint64) {
	event := Change{Type: "changed", Version: version, Timestamp: time.Now()}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full; it will catch up from the next
			// event since versions are monotonic.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
