// Package broadcast fans accepted taps out to live-monitor subscribers.
// The hub is constructed once at startup and passed by handle; there is
// no package-level singleton.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"
)

// Message is the normalized, externally visible shape of an accepted tap.
type Message struct {
	Type       string    `json:"type"` // student | teacher
	Name       string    `json:"name"`
	Transition string    `json:"transition"` // arrival | departure
	Timestamp  time.Time `json:"timestamp"`
	Location   string    `json:"location,omitempty"`
}

// Hub delivers each published message to every current subscriber.
// Publish never blocks: each subscriber has a bounded buffer and the
// oldest message is dropped on overflow. Live monitoring is best-effort;
// the attendance record is the durable source of truth.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	drops  atomic.Uint64
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[*Subscriber]struct{}), buffer: buffer}
}

// Subscribe registers a new live-monitor client. The subscription starts
// from "now": there is no backlog replay.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{hub: h, ch: make(chan Message, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish fans msg out to all subscribers without waiting on any of them.
func (h *Hub) Publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			// Full buffer: drop the oldest so the subscriber keeps
			// receiving the freshest events in order.
			select {
			case <-s.ch:
				h.drops.Add(1)
			default:
			}
			select {
			case s.ch <- msg:
			default:
				h.drops.Add(1)
			}
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Drops returns the total number of messages discarded on full buffers.
func (h *Hub) Drops() uint64 { return h.drops.Load() }

// Subscriber is one live-monitor client's message stream.
type Subscriber struct {
	hub  *Hub
	ch   chan Message
	once sync.Once
}

// C returns the receive channel. It is closed when the subscriber is
// closed.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Close releases the subscription slot. Safe to call more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}
