package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"transcriber/internal/models"
)

// Hub is an in-process broker for single-process deployments and tests.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []byte]struct{}
	buffer int
}

// NewHub creates a hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[string]map[chan []byte]struct{}),
		buffer: buffer,
	}
}

// Publish delivers n to every current subscriber of channel. Slow
// subscribers whose buffer is full miss the message.
func (h *Hub) Publish(_ context.Context, channel string, n models.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Printf("Error encoding notification: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[channel] {
		select {
		case ch <- data:
		default:
			log.Printf("Notification dropped for slow subscriber on %s", channel)
		}
	}
}

// Subscribe registers a subscriber. The returned channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, h.buffer)

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[chan []byte]struct{})
	}
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[channel], ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Close is a no-op; subscribers end with their contexts.
func (h *Hub) Close() error {
	return nil
}
