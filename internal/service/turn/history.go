package turn

import (
	"sync"

	"github.com/curiolabs/curio/internal/model/chat"
)

// History is the ordered in-memory message list for the active conversation.
// Only the controller mutates it; readers always get copies.
type History struct {
	mu    sync.RWMutex
	items []chat.Message
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{items: make([]chat.Message, 0, 16)}
}

// Append adds messages to the end of the list.
func (h *History) Append(msgs ...chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, msgs...)
}

// Update replaces the entry currently stored under id. The replacement may
// carry a different id, which is how a provisional id gets superseded by the
// server-assigned one.
func (h *History) Update(id string, msg chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.items {
		if h.items[i].ID == id {
			h.items[i] = msg
			return
		}
	}
}

// ReplaceAll swaps the whole list, used when loading an existing
// conversation.
func (h *History) ReplaceAll(msgs []chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items[:0:0], msgs...)
}

// Reset empties the history.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = h.items[:0:0]
}

// Messages returns a snapshot copy of the list.
func (h *History) Messages() []chat.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]chat.Message, len(h.items))
	for i, m := range h.items {
		out[i] = m.Clone()
	}
	return out
}

// Len reports the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
