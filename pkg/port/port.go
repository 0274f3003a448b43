// Package port defines the capability interfaces that concrete speech and
// inference backends must satisfy: transcription, synthesis, image
// description, and chat completion.
//
// Each capability has one local implementation (on-device or co-located
// server) and one remote implementation (network API) in the subpackages of
// pkg/port. The routing layer composes them into backends and decides per
// request which side to use; nothing above this package may import a concrete
// backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly on every blocking call.
package port

import (
	"context"
	"errors"
)

// ErrEmptyResult is returned when a backend responds successfully at the
// transport level but produces no usable content. Callers treat it like any
// other backend failure; absence alone is never the failure signal.
var ErrEmptyResult = errors.New("port: backend returned empty result")

// Message roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a chat conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser, or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Clip is a block of synthesized speech ready for playback.
type Clip struct {
	// Samples holds normalised mono samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz. Synthesizers are not required to match the capture
	// rate; playback resamples when needed.
	SampleRate int
}

// ImageRef identifies a captured still image for vision description.
// Either Path or Data is set; Data takes precedence when both are present.
type ImageRef struct {
	// Path is a filesystem path to an encoded image.
	Path string

	// Data is the raw encoded image payload.
	Data []byte

	// MIME is the content type of the encoded payload (e.g. "image/jpeg").
	// Defaults to "image/jpeg" when empty.
	MIME string
}

// Empty reports whether the reference carries no image at all.
func (r ImageRef) Empty() bool {
	return r.Path == "" && len(r.Data) == 0
}

// Transcriber converts a complete utterance into text.
type Transcriber interface {
	// Transcribe recognises the given mono samples. It returns
	// [ErrEmptyResult] when recognition succeeds but yields no words
	// (silence, non-speech noise).
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Synthesizer converts one text segment into playable audio.
type Synthesizer interface {
	// Synthesize renders text as speech. Returns [ErrEmptyResult] when the
	// backend produces no audio.
	Synthesize(ctx context.Context, text string) (*Clip, error)
}

// Describer produces a textual description of an image.
type Describer interface {
	// Describe answers question about the referenced image in one or two
	// sentences of plain text.
	Describe(ctx context.Context, image ImageRef, question string) (string, error)
}

// Completer produces chat completions, whole or streamed.
type Completer interface {
	// Complete sends the conversation to the model and waits for the full
	// reply. Returns [ErrEmptyResult] for a well-formed but empty response.
	Complete(ctx context.Context, messages []Message, systemPrompt string) (string, error)

	// CompleteStream sends the conversation to the model and returns a
	// stream of text fragments. The initial error return covers failures
	// that prevent the stream from starting; failures after that are
	// recorded on the returned [Stream] and surfaced via [Stream.Err] after
	// the channel closes.
	CompleteStream(ctx context.Context, messages []Message, systemPrompt string) (*Stream, error)
}
