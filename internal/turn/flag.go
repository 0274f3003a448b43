package turn

import "sync/atomic"

// Flag is the process-wide assistant-speaking indicator. The turn controller
// is the single writer; the endpoint detector reads it as its gate so
// playback is never captured as user speech.
type Flag struct {
	speaking atomic.Bool
}

// Speaking reports whether the assistant is currently producing audio.
// Implements the endpoint gate interface.
func (f *Flag) Speaking() bool {
	return f.speaking.Load()
}

func (f *Flag) set()   { f.speaking.Store(true) }
func (f *Flag) clear() { f.speaking.Store(false) }
