package port

import "sync"

// Stream is a live completion stream. Fragments arrive on C; the channel is
// closed by the producing backend when generation finishes, the context is
// cancelled, or an error occurs. After C is closed, Err reports whether the
// stream ended early; termination alone never signals failure.
type Stream struct {
	// C emits text fragments in generation order.
	C <-chan string

	mu  sync.Mutex
	err error
}

// NewStream wraps ch in a Stream. The producer retains the send side and is
// responsible for closing it.
func NewStream(ch <-chan string) *Stream {
	return &Stream{C: ch}
}

// SetErr records the reason the stream terminated early. Only the first
// recorded error is kept. Safe for concurrent use.
func (s *Stream) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the recorded mid-stream error, or nil for a clean end.
// Meaningful once C has been drained.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
