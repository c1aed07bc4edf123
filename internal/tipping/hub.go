package tipping

import (
	"sync"

	"github.com/rovshanmuradov/tipstark/internal/domain"
)

const subscriberBuffer = 32

// Hub fans tip events out to per-session subscribers. Slow subscribers
// lose events rather than block the ledger.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.TipEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan domain.TipEvent]struct{})}
}

// Subscribe returns a channel of events for key and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(key string) (<-chan domain.TipEvent, func()) {
	ch := make(chan domain.TipEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan domain.TipEvent]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[key]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(key string, ev domain.TipEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// Drop closes every subscriber of key.
func (h *Hub) Drop(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		close(ch)
	}
	delete(h.subs, key)
}
