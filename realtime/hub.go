package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"loyaltykit/core"
)

// Hub is a simple pub/sub for broadcasting loyalty events to channels.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	ch      chan core.Event
	subject string // empty means all subjects
}

func NewHub() *Hub { return &Hub{subs: map[int]*subscription{}} }

// Subscribe registers a listener for all events.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	return h.subscribe(buffer, "")
}

// SubscribeSubject registers a listener scoped to one customer within a center.
func (h *Hub) SubscribeSubject(buffer int, customer core.CustomerID, center core.CenterID) (int, <-chan core.Event) {
	return h.subscribe(buffer, core.SubjectKey(customer, center))
}

func (h *Hub) subscribe(buffer int, subject string) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	sub := &subscription{ch: make(chan core.Event, buffer), subject: subject}
	h.subs[id] = sub
	return id, sub.ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	subject := core.SubjectKey(ev.CustomerID, ev.CenterID)
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan core.Event, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.subject != "" && sub.subject != subject {
			continue
		}
		receivers = append(receivers, sub.ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
