package route

import (
	"sync"

	"github.com/sycalabs/ava/pkg/port"
)

// defaultHistoryCap bounds the conversation history. Older messages are
// evicted in pairs so the window always starts with a user message.
const defaultHistoryCap = 10

// History is a capped, in-memory conversation window. It never survives a
// restart. Safe for concurrent use.
type History struct {
	mu   sync.Mutex
	cap  int
	msgs []port.Message
}

// NewHistory creates a history holding at most capacity messages.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &History{cap: capacity}
}

// Append adds a completed user/assistant exchange, evicting the oldest
// messages when the window overflows.
func (h *History) Append(user, assistant port.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, user, assistant)
	if over := len(h.msgs) - h.cap; over > 0 {
		h.msgs = h.msgs[over:]
	}
}

// Snapshot returns a copy of the current window, oldest first.
func (h *History) Snapshot() []port.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]port.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Reset clears the window.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}
