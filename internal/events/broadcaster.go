// Package events provides an SSE event broadcaster for storage change
// notifications.
package events

import (
	"sync"
	"time"

	"github.com/burrowfs/burrow/internal/metrics"
	"github.com/burrowfs/burrow/internal/storage"
	"github.com/burrowfs/burrow/pkg/protocol"
)

// Event type names on the wire.
const (
	EventCreated  = "created"  // folder created
	EventUploaded = "uploaded" // file published
	EventDeleted  = "deleted"
	EventChanged  = "changed" // external change seen by the watcher
)

// Event is a storage change notification scoped to one tenant.
type Event = protocol.Event

type subscriber struct {
	ch      chan Event
	tenants map[storage.Tenant]struct{}
}

// Broadcaster manages SSE subscribers and publishes events. Each
// subscriber only receives events for tenants it registered for.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Subscription is a live event feed. Close it with Unsubscribe.
type Subscription struct {
	b   *Broadcaster
	sub *subscriber
}

// C returns the event channel.
func (s *Subscription) C() <-chan Event { return s.sub.ch }

// Subscribe registers a subscriber for the given tenants.
func (b *Broadcaster) Subscribe(tenants ...storage.Tenant) *Subscription {
	sub := &subscriber{
		ch:      make(chan Event, 64),
		tenants: make(map[storage.Tenant]struct{}, len(tenants)),
	}
	for _, t := range tenants {
		sub.tenants[t] = struct{}{}
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(b.Count()))
	return &Subscription{b: b, sub: sub}
}

// Unsubscribe removes the subscriber and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.b.mu.Lock()
	if _, ok := s.b.subscribers[s.sub]; ok {
		delete(s.b.subscribers, s.sub)
		close(s.sub.ch)
	}
	s.b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(s.b.Count()))
}

// Publish sends an event to every subscriber registered for its
// tenant. Non-blocking: slow consumers lose events rather than stall
// the publisher.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		if _, ok := sub.tenants[storage.Tenant(event.Tenant)]; !ok {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
