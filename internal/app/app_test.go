package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/sycalabs/ava/internal/app"
	"github.com/sycalabs/ava/internal/endpoint"
	"github.com/sycalabs/ava/internal/route"
	"github.com/sycalabs/ava/internal/turn"
	"github.com/sycalabs/ava/pkg/audio"
	"github.com/sycalabs/ava/pkg/port/mock"
)

type chanCapture struct {
	ch chan audio.Chunk
}

func (c *chanCapture) Start(_ context.Context) (<-chan audio.Chunk, error) {
	return c.ch, nil
}

type nopPlayer struct{}

func (nopPlayer) Play(_ context.Context, _ []float32, _ int) error { return nil }

func loudChunk() audio.Chunk {
	samples := make([]float32, audio.DefaultChunkSamples)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.2
		} else {
			samples[i] = -0.2
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

func buildApp(t *testing.T, transcript string, synth *mock.Synthesizer, capture *chanCapture) *app.App {
	t.Helper()
	local := &route.Backend{
		Name:      route.SideLocal,
		Completer: &mock.Completer{CompleteResult: "A reply."},
		Timeout:   5 * time.Second,
	}
	local.SetAvailable(true)
	router := route.New(route.ModeSpeed, local, nil, "", nil)

	var exitFn func()
	controller := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: transcript},
		Synthesizer: synth,
		Router:      router,
		Player:      nopPlayer{},
		OnExit: func() {
			if exitFn != nil {
				exitFn()
			}
		},
	})

	detector := endpoint.NewDetector(0.02, 0, endpoint.WithGate(controller.Gate()))

	a, err := app.New(app.Config{
		Capture:    capture,
		Detector:   detector,
		Controller: controller,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	exitFn = a.ExitFunc()
	return a
}

func TestRun_ExitIntentEndsSessionCleanly(t *testing.T) {
	t.Parallel()
	capture := &chanCapture{ch: make(chan audio.Chunk, 8)}
	synth := &mock.Synthesizer{}
	a := buildApp(t, "goodbye ava", synth, capture)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Speech then silence finalises an utterance transcribed as "goodbye";
	// the exit intent must end Run on its own.
	capture.ch <- loudChunk()
	capture.ch <- silentChunk()
	capture.ch <- silentChunk()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on exit intent", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not end after exit intent")
	}
	if got := synth.Spoken(); len(got) != 1 || got[0] != turn.Farewell {
		t.Errorf("spoken = %q, want farewell", got)
	}
}

func TestRun_UtteranceSpeaksReply(t *testing.T) {
	t.Parallel()
	capture := &chanCapture{ch: make(chan audio.Chunk, 8)}
	synth := &mock.Synthesizer{}
	a := buildApp(t, "hello there", synth, capture)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	capture.ch <- loudChunk()
	capture.ch <- silentChunk()
	capture.ch <- silentChunk()

	deadline := time.After(5 * time.Second)
	for len(synth.Spoken()) == 0 {
		select {
		case <-deadline:
			t.Fatal("reply never spoken")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if got := synth.Spoken(); got[0] != "A reply." {
		t.Errorf("spoken = %q, want the routed reply", got)
	}
}

func TestRun_CaptureEndReturnsError(t *testing.T) {
	t.Parallel()
	capture := &chanCapture{ch: make(chan audio.Chunk)}
	synth := &mock.Synthesizer{}
	a := buildApp(t, "hello", synth, capture)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(capture.ch)
	if err := a.Run(ctx); err == nil {
		t.Fatal("expected error when capture stream ends")
	}
}

func TestNew_RequiresCapture(t *testing.T) {
	t.Parallel()
	if _, err := app.New(app.Config{}); err == nil {
		t.Fatal("expected error for missing capture")
	}
}
