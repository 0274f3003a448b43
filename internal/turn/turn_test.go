package turn_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sycalabs/ava/internal/endpoint"
	"github.com/sycalabs/ava/internal/route"
	"github.com/sycalabs/ava/internal/turn"
	"github.com/sycalabs/ava/internal/vision"
	"github.com/sycalabs/ava/pkg/port"
	"github.com/sycalabs/ava/pkg/port/mock"
)

type stubPlayer struct {
	mu      sync.Mutex
	clips   int
	err     error
	during  func() // called while a clip is "playing"
	release chan struct{}
}

func (p *stubPlayer) Play(_ context.Context, samples []float32, _ int) error {
	p.mu.Lock()
	p.clips++
	during := p.during
	release := p.release
	p.mu.Unlock()
	if during != nil {
		during()
	}
	if release != nil {
		<-release
	}
	return p.err
}

func (p *stubPlayer) Played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clips
}

func utterance() *endpoint.Utterance {
	return &endpoint.Utterance{
		Samples:    make([]float32, 4000),
		SampleRate: 16000,
		Duration:   250 * time.Millisecond,
	}
}

func newRouter(c *mock.Completer) *route.Router {
	local := &route.Backend{Name: route.SideLocal, Completer: c, Timeout: 5 * time.Second}
	local.SetAvailable(true)
	return route.New(route.ModeSpeed, local, nil, "", nil)
}

func TestHandleUtterance_FullTurn(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "Hi there. How are you? Fine"}
	synth := &mock.Synthesizer{}
	player := &stubPlayer{}
	router := newRouter(completer)

	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "hello ava"},
		Synthesizer: synth,
		Router:      router,
		Player:      player,
	})

	c.HandleUtterance(context.Background(), utterance())

	want := []string{"Hi there.", "How are you?", "Fine"}
	if got := synth.Spoken(); !slices.Equal(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
	if player.Played() != 3 {
		t.Errorf("played clips = %d, want 3", player.Played())
	}
	if router.History().Len() != 2 {
		t.Errorf("history len = %d, want 2", router.History().Len())
	}
	if c.Gate().Speaking() {
		t.Error("speaking flag still set after turn")
	}
}

func TestHandleUtterance_FlagSetDuringPlayback(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "One sentence."}
	player := &stubPlayer{}
	var c *turn.Controller

	sawSpeaking := false
	player.during = func() {
		sawSpeaking = c.Gate().Speaking()
	}

	c = turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "hi"},
		Synthesizer: &mock.Synthesizer{},
		Router:      newRouter(completer),
		Player:      player,
	})

	c.HandleUtterance(context.Background(), utterance())

	if !sawSpeaking {
		t.Error("speaking flag not set while clip was playing")
	}
	if c.Gate().Speaking() {
		t.Error("speaking flag not cleared after playback")
	}
}

func TestHandleUtterance_DropsWhileBusy(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "Busy reply."}
	stt := &mock.Transcriber{TranscribeResult: "hello"}
	player := &stubPlayer{release: make(chan struct{})}

	c := turn.New(turn.Config{
		Transcriber: stt,
		Synthesizer: &mock.Synthesizer{},
		Router:      newRouter(completer),
		Player:      player,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.HandleUtterance(context.Background(), utterance())
	}()

	// Wait until the first turn is blocked in playback.
	deadline := time.After(2 * time.Second)
	for player.Played() == 0 {
		select {
		case <-deadline:
			t.Fatal("first turn never reached playback")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Second utterance lands while busy and is dropped.
	c.HandleUtterance(context.Background(), utterance())
	if got := stt.CallCount(); got != 1 {
		t.Errorf("transcriber calls = %d, want 1 (second utterance dropped)", got)
	}

	close(player.release)
	<-done
}

func TestHandleUtterance_EmptyTranscriptionAbandons(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "never"}
	synth := &mock.Synthesizer{}

	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "   "},
		Synthesizer: synth,
		Router:      newRouter(completer),
		Player:      &stubPlayer{},
	})

	c.HandleUtterance(context.Background(), utterance())

	if len(completer.CompleteCalls) != 0 {
		t.Error("completer called despite empty transcription")
	}
	if len(synth.Spoken()) != 0 {
		t.Error("synthesis ran despite empty transcription")
	}
}

func TestHandleUtterance_TranscriberFallback(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "Heard you."}
	synth := &mock.Synthesizer{}

	c := turn.New(turn.Config{
		Transcriber:         &mock.Transcriber{TranscribeErr: errors.New("whisper down")},
		TranscriberFallback: &mock.Transcriber{TranscribeResult: "hello"},
		Synthesizer:         synth,
		Router:              newRouter(completer),
		Player:              &stubPlayer{},
	})

	c.HandleUtterance(context.Background(), utterance())

	if got := synth.Spoken(); len(got) != 1 || got[0] != "Heard you." {
		t.Errorf("spoken = %q, want the routed reply", got)
	}
}

func TestHandleUtterance_ExitIntent(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "never"}
	synth := &mock.Synthesizer{}
	router := newRouter(completer)
	router.History().Append(
		port.Message{Role: port.RoleUser, Content: "earlier"},
		port.Message{Role: port.RoleAssistant, Content: "reply"},
	)

	exited := false
	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "goodbye ava"},
		Synthesizer: synth,
		Router:      router,
		Player:      &stubPlayer{},
		OnExit:      func() { exited = true },
	})

	c.HandleUtterance(context.Background(), utterance())

	if !exited {
		t.Error("OnExit not called")
	}
	if got := synth.Spoken(); len(got) != 1 || got[0] != turn.Farewell {
		t.Errorf("spoken = %q, want farewell", got)
	}
	if len(completer.CompleteCalls) != 0 {
		t.Error("completer called on exit turn")
	}
	if router.History().Len() != 0 {
		t.Error("history not reset on exit")
	}
}

func TestHandleUtterance_ResetIntent(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "never"}
	synth := &mock.Synthesizer{}
	router := newRouter(completer)
	router.History().Append(
		port.Message{Role: port.RoleUser, Content: "earlier"},
		port.Message{Role: port.RoleAssistant, Content: "reply"},
	)

	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "reset"},
		Synthesizer: synth,
		Router:      router,
		Player:      &stubPlayer{},
	})

	c.HandleUtterance(context.Background(), utterance())

	if router.History().Len() != 0 {
		t.Error("history not reset")
	}
	if len(completer.CompleteCalls) != 0 {
		t.Error("completer called on reset turn")
	}
	if got := synth.Spoken(); len(got) != 1 {
		t.Errorf("spoken = %q, want one acknowledgement", got)
	}
}

type fixedSource struct{ img port.ImageRef }

func (s fixedSource) Capture(_ context.Context) (port.ImageRef, error) { return s.img, nil }

func TestHandleUtterance_VisionInjection(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteResult: "You are holding a mug."}
	analyzer := vision.New(
		fixedSource{img: port.ImageRef{Data: []byte{1}}},
		&mock.Describer{DescribeResult: "a red mug"},
		nil, time.Second, 30*time.Second,
	)
	analyzer.AnalyzeOnce(context.Background())

	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "what am I holding"},
		Synthesizer: &mock.Synthesizer{},
		Router:      newRouter(completer),
		Vision:      analyzer,
		Player:      &stubPlayer{},
	})

	c.HandleUtterance(context.Background(), utterance())

	msgs := completer.LastComplete()
	if len(msgs) == 0 {
		t.Fatal("completer not called")
	}
	want := "[SYSTEM: You see the following: a red mug]\n\nUser: what am I holding"
	if got := msgs[len(msgs)-1].Content; got != want {
		t.Errorf("routed content = %q, want %q", got, want)
	}
}

func newStreamingRouter(c *mock.Completer) *route.Router {
	cloud := &route.Backend{Name: route.SideCloud, Completer: c, Timeout: 5 * time.Second}
	cloud.SetAvailable(true)
	return route.New(route.ModeQuality, nil, cloud, "", nil)
}

func TestHandleUtterance_StreamingSegments(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{
		StreamFragments: []string{"Hello there. How are", " you? Good."},
	}
	synth := &mock.Synthesizer{}
	router := newStreamingRouter(completer)

	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "hi ava"},
		Synthesizer: synth,
		Router:      router,
		Player:      &stubPlayer{},
		Streaming:   true,
	})

	c.HandleUtterance(context.Background(), utterance())

	want := []string{"Hello there.", "How are you?", "Good."}
	if got := synth.Spoken(); !slices.Equal(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
	if router.History().Len() != 2 {
		t.Errorf("history len = %d, want 2 after streamed turn", router.History().Len())
	}
}

func TestHandleUtterance_MidStreamFailureFallsBack(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{
		StreamFragments: []string{"Partial sen"},
		StreamMidErr:    errors.New("connection reset"),
		CompleteResult:  "Full reply spoken whole. Even with periods.",
	}
	synth := &mock.Synthesizer{}
	router := newStreamingRouter(completer)

	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "hi"},
		Synthesizer: synth,
		Router:      router,
		Player:      &stubPlayer{},
		Streaming:   true,
	})

	c.HandleUtterance(context.Background(), utterance())

	got := synth.Spoken()
	if len(got) == 0 {
		t.Fatal("nothing spoken")
	}
	// The non-streamed fallback speaks the whole reply as one segment.
	last := got[len(got)-1]
	if last != "Full reply spoken whole. Even with periods." {
		t.Errorf("fallback segment = %q, want whole reply", last)
	}
	if len(completer.StreamCalls) != 1 || len(completer.CompleteCalls) != 1 {
		t.Errorf("calls = %d stream / %d complete, want 1/1",
			len(completer.StreamCalls), len(completer.CompleteCalls))
	}
}

func TestHandleUtterance_ApologySpokenWhenAllBackendsFail(t *testing.T) {
	t.Parallel()
	completer := &mock.Completer{CompleteErr: errors.New("down")}
	synth := &mock.Synthesizer{}
	router := newRouter(completer)

	c := turn.New(turn.Config{
		Transcriber: &mock.Transcriber{TranscribeResult: "hello"},
		Synthesizer: synth,
		Router:      router,
		Player:      &stubPlayer{},
	})

	c.HandleUtterance(context.Background(), utterance())

	if got := synth.Spoken(); len(got) != 1 || got[0] != route.Apology {
		t.Errorf("spoken = %q, want single apology", got)
	}
	if router.History().Len() != 0 {
		t.Error("failed turn recorded in history")
	}
}
