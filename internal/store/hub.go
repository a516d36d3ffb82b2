package store

import (
	"log/slog"
	"sync"

	applog "hearth/internal/log"
)

const subscriptionBuffer = 64

// Hub fans row-level change events out to push subscriptions. Both store
// implementations publish every confirmed write through a Hub; the AMQP
// bridge taps it to carry events across instances.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]*hubSubscription
	nextID int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*hubSubscription)}
}

type hubSubscription struct {
	hub        *Hub
	id         int
	collection string
	scope      string
	status     chan Status
	events     chan Change
	closeOnce  sync.Once
}

// Subscribe opens a subscription filtered to (collection, scope). Empty
// collection or scope act as wildcards. The subscription reports
// connecting followed by subscribed on its status channel.
func (h *Hub) Subscribe(collection, scope string) *hubSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &hubSubscription{
		hub:        h,
		id:         h.nextID,
		collection: collection,
		scope:      scope,
		status:     make(chan Status, 4),
		events:     make(chan Change, subscriptionBuffer),
	}
	h.nextID++

	sub.status <- StatusConnecting
	if h.closed {
		sub.status <- StatusError
		return sub
	}
	h.subs[sub.id] = sub
	sub.status <- StatusSubscribed
	return sub
}

// Publish delivers a change to every matching subscription. Delivery is
// non-blocking: a subscriber that has stopped draining its buffer loses
// events rather than stalling writers (the polling fallback covers it).
func (h *Hub) Publish(ch Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.collection != "" && sub.collection != ch.Collection {
			continue
		}
		if sub.scope != "" && sub.scope != ch.Scope {
			continue
		}
		select {
		case sub.events <- ch:
		default:
			slog.Warn("Dropping change event for slow subscriber",
				applog.FieldCollection, ch.Collection,
				applog.FieldScope, ch.Scope,
				"kind", ch.Kind)
		}
	}
}

// Close tears down every subscription. Later Subscribe calls report an
// error status so callers fall back to polling.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.events)
		close(sub.status)
	}
}

func (s *hubSubscription) Status() <-chan Status { return s.status }
func (s *hubSubscription) Events() <-chan Change { return s.events }

// Close detaches from the hub. Safe to call more than once and after the
// hub itself shut down.
func (s *hubSubscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.mu.Lock()
		_, registered := s.hub.subs[s.id]
		if registered {
			delete(s.hub.subs, s.id)
		}
		closed := s.hub.closed
		s.hub.mu.Unlock()

		if !closed {
			close(s.events)
			close(s.status)
		}
	})
}
