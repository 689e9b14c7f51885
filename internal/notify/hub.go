// Package notify wakes stream listeners when a session reaches a terminal state.
package notify

import (
	"context"
	"sync"

	"github.com/fentz26/tripassist/internal/models"
)

// Notifier registers listeners for a session and publishes results to them.
type Notifier interface {
	// Subscribe registers a listener. The channel receives at most one result and
	// is then closed. cancel releases the registration and is safe to call twice.
	Subscribe(id string) (ch <-chan models.Result, cancel func())
	// Publish hands a result to every listener registered for id.
	Publish(ctx context.Context, id string, result models.Result) error
}

// Hub is the in-process Notifier. A publish delivers to every current listener of
// the session and clears the registration; a publish with no listeners is dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan models.Result
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]chan models.Result)}
}

// Subscribe adds a listener for id.
func (h *Hub) Subscribe(id string) (<-chan models.Result, func()) {
	ch := make(chan models.Result, 1)

	h.mu.Lock()
	h.subs[id] = append(h.subs[id], ch)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.unsubscribe(id, ch) })
	}
	return ch, cancel
}

func (h *Hub) unsubscribe(id string, ch chan models.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[id]
	for i, s := range subs {
		if s == ch {
			subs = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.subs, id)
	} else {
		h.subs[id] = subs
	}
}

// Publish implements Notifier for a single process.
func (h *Hub) Publish(_ context.Context, id string, result models.Result) error {
	h.Deliver(id, result)
	return nil
}

// Deliver sends result to every listener of id and reports how many there were.
func (h *Hub) Deliver(id string, result models.Result) int {
	h.mu.Lock()
	subs := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	for _, ch := range subs {
		// Each channel is removed from the map before its only send, so the
		// buffer always has room.
		ch <- result
		close(ch)
	}
	return len(subs)
}

// Listeners reports how many listeners are registered for id.
func (h *Hub) Listeners(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}
