// Package mock provides test doubles for the capability interfaces in
// pkg/port.
//
// Zero values for response fields cause methods to return zero values and nil
// errors; set the Err fields to inject failures. All call records are guarded
// by an internal mutex so the mocks can be driven from pipeline goroutines
// and inspected after the test synchronises.
//
// Example:
//
//	c := &mock.Completer{CompleteResult: "Hello!"}
//	reply, err := c.Complete(ctx, msgs, "")
package mock

import (
	"context"
	"sync"

	"github.com/sycalabs/ava/pkg/port"
)

// Transcriber is a mock implementation of [port.Transcriber].
type Transcriber struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult string

	// TranscribeErr, if non-nil, is returned instead of TranscribeResult.
	TranscribeErr error

	// Calls records the sample counts of every Transcribe invocation.
	Calls []int
}

// Transcribe implements [port.Transcriber].
func (m *Transcriber) Transcribe(_ context.Context, samples []float32, _ int) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, len(samples))
	m.mu.Unlock()
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	return m.TranscribeResult, nil
}

// CallCount returns the number of recorded Transcribe invocations.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Synthesizer is a mock implementation of [port.Synthesizer].
type Synthesizer struct {
	mu sync.Mutex

	// Clip is returned by Synthesize. When nil, a short non-empty clip is
	// fabricated so playback paths exercise normally.
	Clip *port.Clip

	// SynthesizeErr, if non-nil, is returned instead of a clip.
	SynthesizeErr error

	// Texts records every synthesized text in call order.
	Texts []string
}

// Synthesize implements [port.Synthesizer].
func (m *Synthesizer) Synthesize(_ context.Context, text string) (*port.Clip, error) {
	m.mu.Lock()
	m.Texts = append(m.Texts, text)
	m.mu.Unlock()
	if m.SynthesizeErr != nil {
		return nil, m.SynthesizeErr
	}
	if m.Clip != nil {
		return m.Clip, nil
	}
	return &port.Clip{Samples: make([]float32, 160), SampleRate: 16000}, nil
}

// Spoken returns a snapshot of all texts synthesized so far.
func (m *Synthesizer) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Texts))
	copy(out, m.Texts)
	return out
}

// Describer is a mock implementation of [port.Describer].
type Describer struct {
	mu sync.Mutex

	// DescribeResult is returned by Describe.
	DescribeResult string

	// DescribeErr, if non-nil, is returned instead of DescribeResult.
	DescribeErr error

	// Questions records every question passed to Describe.
	Questions []string
}

// Describe implements [port.Describer].
func (m *Describer) Describe(_ context.Context, _ port.ImageRef, question string) (string, error) {
	m.mu.Lock()
	m.Questions = append(m.Questions, question)
	m.mu.Unlock()
	if m.DescribeErr != nil {
		return "", m.DescribeErr
	}
	return m.DescribeResult, nil
}

// Completer is a mock implementation of [port.Completer].
type Completer struct {
	mu sync.Mutex

	// CompleteResult is returned by Complete.
	CompleteResult string

	// CompleteErr, if non-nil, is returned instead of CompleteResult.
	CompleteErr error

	// StreamFragments is the sequence emitted by CompleteStream before the
	// channel closes.
	StreamFragments []string

	// StreamStartErr, if non-nil, is returned by CompleteStream instead of
	// starting a stream.
	StreamStartErr error

	// StreamMidErr, if non-nil, is recorded on the stream after
	// StreamFragments have been emitted, simulating a mid-stream failure.
	StreamMidErr error

	// CompleteCalls records the message slices of every Complete invocation.
	CompleteCalls [][]port.Message

	// StreamCalls records the message slices of every CompleteStream invocation.
	StreamCalls [][]port.Message
}

// Complete implements [port.Completer].
func (m *Completer) Complete(_ context.Context, messages []port.Message, _ string) (string, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, messages)
	m.mu.Unlock()
	if m.CompleteErr != nil {
		return "", m.CompleteErr
	}
	return m.CompleteResult, nil
}

// CompleteStream implements [port.Completer].
func (m *Completer) CompleteStream(ctx context.Context, messages []port.Message, _ string) (*port.Stream, error) {
	m.mu.Lock()
	m.StreamCalls = append(m.StreamCalls, messages)
	fragments := make([]string, len(m.StreamFragments))
	copy(fragments, m.StreamFragments)
	midErr := m.StreamMidErr
	startErr := m.StreamStartErr
	m.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}

	ch := make(chan string)
	stream := port.NewStream(ch)
	go func() {
		defer close(ch)
		for _, f := range fragments {
			select {
			case ch <- f:
			case <-ctx.Done():
				stream.SetErr(ctx.Err())
				return
			}
		}
		if midErr != nil {
			stream.SetErr(midErr)
		}
	}()
	return stream, nil
}

// LastComplete returns the messages of the most recent Complete call, or nil.
func (m *Completer) LastComplete() []port.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.CompleteCalls) == 0 {
		return nil
	}
	return m.CompleteCalls[len(m.CompleteCalls)-1]
}
