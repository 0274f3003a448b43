package endpoint_test

import (
	"math"
	"testing"
	"time"

	"github.com/sycalabs/ava/internal/endpoint"
	"github.com/sycalabs/ava/pkg/audio"
)

// fakeClock advances a fixed step on every call, simulating real-time chunk
// arrival without sleeping.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

// toneChunk returns a 250 ms chunk whose RMS is approximately level.
func toneChunk(level float64) audio.Chunk {
	samples := make([]float32, audio.DefaultChunkSamples)
	amp := float32(level)
	if float64(amp) < level {
		amp = math.Nextafter32(amp, 1)
	}
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	return audio.Chunk{Samples: samples, SampleRate: audio.DefaultSampleRate}
}

func silentChunk() audio.Chunk {
	return audio.Chunk{
		Samples:    make([]float32, audio.DefaultChunkSamples),
		SampleRate: audio.DefaultSampleRate,
	}
}

func newTestDetector(opts ...endpoint.Option) *endpoint.Detector {
	clock := &fakeClock{step: 250 * time.Millisecond}
	opts = append(opts, endpoint.WithClock(clock.Now))
	return endpoint.NewDetector(0.02, 2*time.Second, opts...)
}

func TestDetector_SilenceNeverTriggers(t *testing.T) {
	t.Parallel()
	d := newTestDetector()

	for range 100 {
		if u := d.Feed(silentChunk()); u != nil {
			t.Fatal("silence alone produced an utterance")
		}
	}
	if d.State() != endpoint.StateIdle {
		t.Errorf("state = %v, want idle", d.State())
	}
}

func TestDetector_SpeechThenSilenceFinalises(t *testing.T) {
	t.Parallel()
	d := newTestDetector()

	// Four chunks of speech, one second.
	for range 4 {
		if u := d.Feed(toneChunk(0.1)); u != nil {
			t.Fatal("utterance finalised during speech")
		}
	}
	if d.State() != endpoint.StateSpeaking {
		t.Fatalf("state = %v, want speaking", d.State())
	}

	// Silence accumulates towards the two second limit. With a 250 ms clock
	// step the limit is crossed on the ninth silent chunk.
	var got *endpoint.Utterance
	for i := 0; i < 20 && got == nil; i++ {
		got = d.Feed(silentChunk())
	}
	if got == nil {
		t.Fatal("utterance never finalised")
	}
	if got.SampleRate != audio.DefaultSampleRate {
		t.Errorf("sample rate = %d, want %d", got.SampleRate, audio.DefaultSampleRate)
	}
	if len(got.Samples) < 4*audio.DefaultChunkSamples {
		t.Errorf("utterance has %d samples, want at least %d",
			len(got.Samples), 4*audio.DefaultChunkSamples)
	}
	if d.State() != endpoint.StateIdle {
		t.Errorf("state after finalise = %v, want idle", d.State())
	}
}

func TestDetector_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()
	d := newTestDetector()

	// RMS exactly at the threshold counts as speech.
	d.Feed(toneChunk(0.02))
	if d.State() != endpoint.StateSpeaking {
		t.Errorf("state = %v, want speaking for RMS == threshold", d.State())
	}
}

func TestDetector_BelowThresholdIsSilence(t *testing.T) {
	t.Parallel()
	d := newTestDetector()

	d.Feed(toneChunk(0.015))
	if d.State() != endpoint.StateIdle {
		t.Errorf("state = %v, want idle for RMS below threshold", d.State())
	}
}

func TestDetector_ShortPauseDoesNotSplit(t *testing.T) {
	t.Parallel()
	d := newTestDetector()

	d.Feed(toneChunk(0.1))
	// One second of pause, well under the limit.
	for range 4 {
		if u := d.Feed(silentChunk()); u != nil {
			t.Fatal("short pause finalised the utterance")
		}
	}
	// Speech resumes; the detector returns to speaking.
	d.Feed(toneChunk(0.1))
	if d.State() != endpoint.StateSpeaking {
		t.Fatalf("state = %v, want speaking after resume", d.State())
	}

	var got *endpoint.Utterance
	for i := 0; i < 20 && got == nil; i++ {
		got = d.Feed(silentChunk())
	}
	if got == nil {
		t.Fatal("utterance never finalised")
	}
	// Both speech stretches and the interior pause are in one utterance.
	if len(got.Samples) < 6*audio.DefaultChunkSamples {
		t.Errorf("utterance has %d samples, want both speech stretches merged", len(got.Samples))
	}
}

type stubGate struct{ speaking bool }

func (g *stubGate) Speaking() bool { return g.speaking }

func TestDetector_GateDropsChunks(t *testing.T) {
	t.Parallel()
	gate := &stubGate{speaking: true}
	d := newTestDetector(endpoint.WithGate(gate))

	for range 10 {
		if u := d.Feed(toneChunk(0.5)); u != nil {
			t.Fatal("gated chunk produced an utterance")
		}
	}
	if d.State() != endpoint.StateIdle {
		t.Errorf("state = %v, want idle while gated", d.State())
	}
}

func TestDetector_GateAbandonsInProgressUtterance(t *testing.T) {
	t.Parallel()
	gate := &stubGate{}
	d := newTestDetector(endpoint.WithGate(gate))

	// Speech is being accumulated.
	d.Feed(toneChunk(0.1))
	d.Feed(toneChunk(0.1))
	if d.State() != endpoint.StateSpeaking {
		t.Fatalf("state = %v, want speaking", d.State())
	}

	// Assistant starts speaking; next chunk abandons the buffer.
	gate.speaking = true
	if u := d.Feed(toneChunk(0.1)); u != nil {
		t.Fatal("gated chunk produced an utterance")
	}
	if d.State() != endpoint.StateIdle {
		t.Fatalf("state = %v, want idle after abandon", d.State())
	}

	// After the gate reopens, earlier speech must not leak into the next
	// utterance.
	gate.speaking = false
	d.Feed(toneChunk(0.1))
	var got *endpoint.Utterance
	for i := 0; i < 20 && got == nil; i++ {
		got = d.Feed(silentChunk())
	}
	if got == nil {
		t.Fatal("utterance never finalised")
	}
	if len(got.Samples) > 10*audio.DefaultChunkSamples {
		t.Errorf("abandoned speech leaked into next utterance: %d samples", len(got.Samples))
	}
}

func TestDetector_FlushReturnsBufferedSpeech(t *testing.T) {
	t.Parallel()
	d := newTestDetector()

	d.Feed(toneChunk(0.1))
	d.Feed(toneChunk(0.1))

	u := d.Flush()
	if u == nil {
		t.Fatal("Flush returned nil with buffered speech")
	}
	if len(u.Samples) != 2*audio.DefaultChunkSamples {
		t.Errorf("flushed %d samples, want %d", len(u.Samples), 2*audio.DefaultChunkSamples)
	}
	if d.Flush() != nil {
		t.Error("second Flush should return nil")
	}
}

func TestDetector_UtteranceDuration(t *testing.T) {
	t.Parallel()
	d := newTestDetector()

	d.Feed(toneChunk(0.1))
	u := d.Flush()
	if u == nil {
		t.Fatal("Flush returned nil")
	}
	if u.Duration != 250*time.Millisecond {
		t.Errorf("duration = %v, want 250ms", u.Duration)
	}
}
