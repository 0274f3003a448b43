// Package turn drives one conversation turn from a finalised utterance to
// completed playback: transcription, intent checks, routed dispatch, sentence
// segmentation, synthesis, and ordered playback.
//
// Exactly one turn is active at a time. Utterances finalised while a turn is
// in flight are dropped, not queued, so the assistant never answers stale
// input.
package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sycalabs/ava/internal/endpoint"
	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/internal/route"
	"github.com/sycalabs/ava/internal/segment"
	"github.com/sycalabs/ava/internal/vision"
	"github.com/sycalabs/ava/pkg/port"
)

// Farewell is spoken before the session terminates on exit intent.
const Farewell = "Goodbye!"

// resetAck is spoken after the conversation history is cleared.
const resetAck = "Okay, starting fresh."

// Player renders synthesized audio to the output device (or the wire, in the
// split topology). Play blocks until playback of the clip completes.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
}

// Config assembles a [Controller].
type Config struct {
	// Transcriber is the primary STT port.
	Transcriber port.Transcriber

	// TranscriberFallback is tried when the primary fails. Optional.
	TranscriberFallback port.Transcriber

	// Synthesizer is the primary TTS port.
	Synthesizer port.Synthesizer

	// SynthesizerFallback is tried per segment when the primary fails.
	// Optional.
	SynthesizerFallback port.Synthesizer

	// Router dispatches chat requests.
	Router *route.Router

	// Vision provides cached scene descriptions. Optional.
	Vision *vision.Analyzer

	// Player renders reply audio.
	Player Player

	// Streaming enables streamed dispatch with speak-as-you-generate.
	Streaming bool

	// Metrics instruments the pipeline. Optional.
	Metrics *observe.Metrics

	// OnReply is called with the full reply text as soon as it is known,
	// before playback for non-streamed turns. The split-topology host uses
	// it to send the text frame ahead of the audio frames. Optional.
	OnReply func(text string)

	// OnExit is called after the farewell finishes playing. It must cancel
	// the surrounding loops; this is the only path that ends the session.
	OnExit func()
}

// Controller owns the per-turn state machine.
type Controller struct {
	cfg  Config
	flag Flag
	busy atomic.Bool
}

// New creates a Controller.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Gate returns the assistant-speaking flag for the endpoint detector.
func (c *Controller) Gate() endpoint.Gate {
	return &c.flag
}

// HandleUtterance runs one full turn. It returns immediately when a turn is
// already active; the utterance is dropped and counted.
func (c *Controller) HandleUtterance(ctx context.Context, u *endpoint.Utterance) {
	if !c.busy.CompareAndSwap(false, true) {
		slog.Info("turn already active, dropping utterance",
			"samples", len(u.Samples))
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.DiscardedUtterances.Add(ctx, 1)
		}
		return
	}
	defer c.busy.Store(false)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ActiveTurns.Add(ctx, 1)
		defer c.cfg.Metrics.ActiveTurns.Add(ctx, -1)
	}

	turnStart := time.Now()

	text, ok := c.transcribe(ctx, u)
	if !ok {
		return
	}
	slog.Info("transcribed", "text", text)

	if isExitIntent(text) {
		slog.Info("exit intent detected", "text", text)
		c.cfg.Router.History().Reset()
		c.notifyReply(Farewell)
		c.speak(ctx, []string{Farewell})
		if c.cfg.OnExit != nil {
			c.cfg.OnExit()
		}
		return
	}

	if isResetIntent(text) {
		c.cfg.Router.History().Reset()
		c.notifyReply(resetAck)
		c.speak(ctx, []string{resetAck})
		return
	}

	req := route.Request{Text: text}
	if c.cfg.Vision != nil && vision.WantsScene(text) {
		if desc, ok := c.cfg.Vision.Cached(); ok {
			req.Scene = desc
		}
	}

	if c.cfg.Streaming {
		if c.streamTurn(ctx, req, turnStart) {
			return
		}
		// Mid-stream or start failure: one non-streamed retry.
	}
	c.completeTurn(ctx, req, turnStart)
}

// transcribe converts the utterance to text, falling back once. Empty or
// failed recognition abandons the turn silently.
func (c *Controller) transcribe(ctx context.Context, u *endpoint.Utterance) (string, bool) {
	start := time.Now()
	text, err := c.cfg.Transcriber.Transcribe(ctx, u.Samples, u.SampleRate)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil && c.cfg.TranscriberFallback != nil {
		slog.Warn("transcription failed, trying fallback", "error", err)
		text, err = c.cfg.TranscriberFallback.Transcribe(ctx, u.Samples, u.SampleRate)
	}
	if err != nil {
		slog.Debug("transcription failed, abandoning turn", "error", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Debug("empty transcription, abandoning turn")
		return "", false
	}
	return text, true
}

// streamTurn dispatches a streamed reply and speaks sentence segments as
// they complete. Returns false when the stream failed and the caller should
// retry non-streamed.
func (c *Controller) streamTurn(ctx context.Context, req route.Request, turnStart time.Time) bool {
	stream, backend, err := c.cfg.Router.DispatchStream(ctx, req)
	if err != nil {
		slog.Warn("streamed dispatch failed to start", "error", err)
		return false
	}

	segments := segment.Split(ctx, stream.C)

	var full strings.Builder
	first := true
	for seg := range segments {
		if first {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
			}
			c.flag.set()
			defer c.flag.clear()
			first = false
		}
		if full.Len() > 0 {
			full.WriteByte(' ')
		}
		full.WriteString(seg)
		c.speakSegment(ctx, seg)
	}

	if streamErr := stream.Err(); streamErr == nil && full.Len() > 0 {
		c.notifyReply(full.String())
	}
	if err := stream.Err(); err != nil {
		slog.Warn("stream failed mid-reply, retrying non-streamed", "error", err)
		return false
	}
	if full.Len() == 0 {
		slog.Warn("stream produced no text, retrying non-streamed")
		return false
	}

	c.cfg.Router.RecordExchange(req.Text, full.String(), backend)
	return true
}

// completeTurn dispatches one non-streamed reply and speaks it. An apology
// reply is spoken as a single segment, like any other text.
func (c *Controller) completeTurn(ctx context.Context, req route.Request, turnStart time.Time) {
	reply, err := c.cfg.Router.Dispatch(ctx, req)
	if err != nil {
		slog.Warn("dispatch cancelled", "error", err)
		return
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	}
	c.notifyReply(reply.Text)
	if reply.Apology {
		c.speak(ctx, []string{reply.Text})
		return
	}
	c.speak(ctx, segment.SplitText(reply.Text))
}

func (c *Controller) notifyReply(text string) {
	if c.cfg.OnReply != nil {
		c.cfg.OnReply(text)
	}
}

// speak synthesizes and plays the segments strictly in order, holding the
// speaking flag for the whole stretch.
func (c *Controller) speak(ctx context.Context, segments []string) {
	if len(segments) == 0 {
		return
	}
	c.flag.set()
	defer c.flag.clear()
	for _, seg := range segments {
		c.speakSegment(ctx, seg)
	}
}

// speakSegment synthesizes one segment, falling back once, and blocks until
// playback finishes. Synthesis failure skips the segment; the turn goes on.
func (c *Controller) speakSegment(ctx context.Context, text string) {
	start := time.Now()
	clip, err := c.cfg.Synthesizer.Synthesize(ctx, text)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil && c.cfg.SynthesizerFallback != nil {
		slog.Warn("synthesis failed, trying fallback", "error", err)
		clip, err = c.cfg.SynthesizerFallback.Synthesize(ctx, text)
	}
	if err != nil {
		slog.Error("synthesis failed, skipping segment", "error", err)
		return
	}
	if clip == nil || len(clip.Samples) == 0 {
		slog.Warn("synthesis produced no audio, skipping segment")
		return
	}
	if err := c.cfg.Player.Play(ctx, clip.Samples, clip.SampleRate); err != nil {
		slog.Error("playback failed", "error", err)
	}
}
