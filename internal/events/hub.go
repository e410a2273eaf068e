// Package events provides an in-memory pub/sub hub for job lifecycle events,
// with a small ring buffer so late SSE clients can replay recent history.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Well-known event types published by the service.
const (
	TypeJobEnqueued  = "job.enqueued"
	TypeJobCompleted = "job.completed"
	TypeJobFailed    = "job.failed"
)

// Event is one published lifecycle event.
type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"`
}

// Hub fans events out to subscribers and retains the last capacity events.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

// NewHub creates a hub retaining up to capacity events for replay.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish broadcasts an event. Slow subscribers are skipped, never blocked on.
func (h *Hub) Publish(eventType string, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	idx := (h.start + h.size) % len(h.ring)
	h.ring[idx] = ev
	if h.size < len(h.ring) {
		h.size++
	} else {
		h.start = (h.start + 1) % len(h.ring)
	}

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 32)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID greater than lastID, oldest
// first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
