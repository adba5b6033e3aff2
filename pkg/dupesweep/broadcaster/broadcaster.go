// Package broadcaster fans scan progress out to subscribers.
package broadcaster

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// bufferSize is the per-subscriber channel capacity.
const bufferSize = 100

// Subscriber receives progress updates until it unsubscribes or the
// broadcaster closes.
type Subscriber struct {
	ID     string
	Events chan types.ScanProgress
}

// Broadcaster manages subscribers and distributes progress updates.
// Publishing never blocks: when a subscriber falls behind, its oldest
// queued update is dropped so the newest one always lands.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	last        *types.ScanProgress
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber. The most recent update, if any, is
// delivered immediately. Returns nil after Close.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:     uuid.New().String(),
		Events: make(chan types.ScanProgress, bufferSize),
	}
	if b.last != nil {
		sub.Events <- *b.last
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Publish sends p to every subscriber.
func (b *Broadcaster) Publish(p types.ScanProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = &p

	for _, sub := range b.subscribers {
		select {
		case sub.Events <- p:
			continue
		default:
		}
		// Full: drop the oldest update to make room.
		select {
		case <-sub.Events:
		default:
		}
		select {
		case sub.Events <- p:
		default:
		}
	}
}

// Last returns the most recent update.
func (b *Broadcaster) Last() (types.ScanProgress, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return types.ScanProgress{}, false
	}
	return *b.last, true
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
