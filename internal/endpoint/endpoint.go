// Package endpoint turns a continuous stream of capture chunks into discrete
// utterances using RMS energy thresholding with a trailing-silence timeout.
//
// The [Detector] is a push-based state machine: the capture loop feeds it one
// chunk at a time and receives a complete [Utterance] once enough trailing
// silence has accumulated. A [Gate] suppresses detection while the assistant
// itself is speaking so playback does not echo back in as user speech.
package endpoint

import (
	"log/slog"
	"time"

	"github.com/sycalabs/ava/pkg/audio"
)

// State of the detector between chunks.
type State int

const (
	// StateIdle means no speech has been observed since the last utterance.
	StateIdle State = iota

	// StateSpeaking means speech is being accumulated.
	StateSpeaking

	// StateTrailingSilence means speech was observed and the detector is
	// counting silence towards the finalisation limit.
	StateTrailingSilence
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StateTrailingSilence:
		return "trailing-silence"
	}
	return "unknown"
}

// Gate reports whether the assistant is currently producing audible output.
// While the gate is closed (Speaking returns true) all incoming chunks are
// discarded and any accumulated utterance is abandoned.
type Gate interface {
	Speaking() bool
}

// openGate is the Gate used when none is configured.
type openGate struct{}

func (openGate) Speaking() bool { return false }

// Utterance is a finalised stretch of speech ready for transcription.
type Utterance struct {
	// Samples holds the concatenated speech, including interior pauses
	// shorter than the silence limit.
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Duration is the audible length of the utterance.
	Duration time.Duration
}

// Option configures a [Detector].
type Option func(*Detector)

// WithGate installs the self-output gate.
func WithGate(g Gate) Option {
	return func(d *Detector) { d.gate = g }
}

// WithClock replaces the wall clock, letting tests control elapsed time.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector accumulates chunks into utterances. It is not safe for concurrent
// use; feed it from a single capture loop.
type Detector struct {
	threshold    float64
	silenceLimit time.Duration
	gate         Gate
	now          func() time.Time

	state        State
	buf          []float32
	sampleRate   int
	silenceSince time.Time
}

// NewDetector creates a detector that treats chunks with RMS at or above
// threshold as speech and finalises an utterance after silenceLimit of
// uninterrupted trailing silence.
func NewDetector(threshold float64, silenceLimit time.Duration, opts ...Option) *Detector {
	d := &Detector{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		gate:         openGate{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current detector state.
func (d *Detector) State() State {
	return d.state
}

// Feed consumes one capture chunk. It returns a non-nil [Utterance] exactly
// when the chunk completes one; otherwise it returns nil.
//
// While the gate reports the assistant speaking, the chunk is dropped and any
// partially accumulated utterance is abandoned, so playback bleeding into the
// microphone can never masquerade as user speech.
func (d *Detector) Feed(chunk audio.Chunk) *Utterance {
	if d.gate.Speaking() {
		if d.state != StateIdle {
			slog.Debug("abandoning utterance, assistant speaking",
				"buffered_samples", len(d.buf))
		}
		d.reset()
		return nil
	}

	energy := audio.RMS(chunk.Samples)
	loud := energy >= d.threshold

	switch d.state {
	case StateIdle:
		if !loud {
			return nil
		}
		d.state = StateSpeaking
		d.sampleRate = chunk.SampleRate
		d.buf = append(d.buf, chunk.Samples...)
		slog.Debug("speech started", "energy", energy)

	case StateSpeaking:
		d.buf = append(d.buf, chunk.Samples...)
		if !loud {
			d.state = StateTrailingSilence
			d.silenceSince = d.now()
		}

	case StateTrailingSilence:
		d.buf = append(d.buf, chunk.Samples...)
		if loud {
			d.state = StateSpeaking
			return nil
		}
		if d.now().Sub(d.silenceSince) >= d.silenceLimit {
			return d.finalize()
		}
	}
	return nil
}

// Flush finalises whatever speech is buffered regardless of trailing silence.
// Used on stream shutdown so the last utterance is not lost. Returns nil when
// nothing is buffered.
func (d *Detector) Flush() *Utterance {
	if d.state == StateIdle {
		return nil
	}
	return d.finalize()
}

func (d *Detector) finalize() *Utterance {
	u := &Utterance{
		Samples:    d.buf,
		SampleRate: d.sampleRate,
	}
	if d.sampleRate > 0 {
		u.Duration = time.Duration(len(d.buf)) * time.Second / time.Duration(d.sampleRate)
	}
	slog.Debug("utterance finalised",
		"samples", len(u.Samples), "duration", u.Duration)
	d.reset()
	return u
}

func (d *Detector) reset() {
	d.state = StateIdle
	d.buf = nil
	d.silenceSince = time.Time{}
}
