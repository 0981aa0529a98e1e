package notify

import (
	"log"
	"sync"
)

const subscriberBuffer = 16

// Hub is the in-process fan-out used by the SSE endpoint. Each subscriber
// gets a buffered channel; events that would block are dropped so one stalled
// dashboard cannot hold up the lifecycle.
type Hub struct {
	mu     sync.Mutex
	logger *log.Logger
	subs   map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Subscribe registers a listener. The returned function removes the listener
// and must be called exactly once when the listener disconnects.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish implements Bus.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Printf("dropping %s event for slow listener", event.Type)
		}
	}
}

// Listeners returns the current subscriber count.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
