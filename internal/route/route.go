// Package route decides which inference backend serves a request, performs
// single-step failover, and keeps the short conversation history and usage
// counters.
//
// Two backends exist: local (co-located inference servers) and cloud
// (OpenAI-compatible remote API). Availability is probed once at startup and
// is static afterwards; mid-session outages surface as per-request failures
// and failover, not as availability flips.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/pkg/port"
)

// Side names a backend.
const (
	SideLocal = "local"
	SideCloud = "cloud"
)

// Apology is spoken when every backend fails on a turn. The process keeps
// running; only the turn is lost.
const Apology = "I'm having trouble processing that right now. Please try again."

// DefaultSystemPrompt is the persona sent with every dispatch. Replies are
// fed straight into speech synthesis, so the prompt forbids markup and
// stage directions.
const DefaultSystemPrompt = `You are Ava, a voice assistant with a camera and a speaker.

RULES:
1. BE CONCISE: Keep answers short (1-2 sentences).
2. NO ACTING: Do not use asterisks (*smiles*) or describe actions.
3. NO MARKDOWN: Do not use bold (**text**) or italics. Write plain text only.
4. NATURAL SPEECH: Write exactly what should be spoken. No emojis.`

// complexityKeywords route a balanced-mode request to the cloud when any of
// them appears in the lowercased transcript.
var complexityKeywords = []string{
	"analyze", "complex", "detailed", "explain in depth",
	"comprehensive", "thorough", "research", "document",
}

// Backend couples a completer with its identity and per-request timeout.
type Backend struct {
	// Name is SideLocal or SideCloud.
	Name string

	// Completer handles chat requests.
	Completer port.Completer

	// Timeout bounds a single request. A timeout counts as a failure.
	Timeout time.Duration

	available bool
}

// Available reports whether the startup probe found the backend reachable.
func (b *Backend) Available() bool {
	return b != nil && b.available
}

// SetAvailable records the startup probe result.
func (b *Backend) SetAvailable(ok bool) {
	if b != nil {
		b.available = ok
	}
}

// Request is one routed chat turn.
type Request struct {
	// Text is the user transcript.
	Text string

	// Scene is an optional cached scene description. When non-empty it is
	// injected into the user message so the model can reference what the
	// camera sees.
	Scene string
}

// Reply is the outcome of a dispatched request.
type Reply struct {
	// Text is the assistant reply, or [Apology] when Apology is set.
	Text string

	// Backend names the side that produced the reply. Empty on apology.
	Backend string

	// Apology is set when every backend failed and Text carries the fixed
	// apology line.
	Apology bool
}

// Mode selects the routing strategy. The values mirror internal/config.
type Mode string

const (
	ModeSpeed    Mode = "speed"
	ModeQuality  Mode = "quality"
	ModeBalanced Mode = "balanced"
)

// Router routes chat requests between the local and cloud backends.
// Safe for concurrent use, though the turn controller serialises dispatches
// in practice.
type Router struct {
	mode    Mode
	local   *Backend
	cloud   *Backend
	system  string
	history *History
	stats   *Stats
	metrics *observe.Metrics
}

// New creates a Router. Either backend may be nil when that side is not
// configured. The system prompt is sent with every request.
func New(mode Mode, local, cloud *Backend, systemPrompt string, metrics *observe.Metrics) *Router {
	return &Router{
		mode:    mode,
		local:   local,
		cloud:   cloud,
		system:  systemPrompt,
		history: NewHistory(defaultHistoryCap),
		stats:   &Stats{},
		metrics: metrics,
	}
}

// History exposes the conversation history, mainly for reset commands.
func (r *Router) History() *History {
	return r.history
}

// Stats exposes the usage counters.
func (r *Router) Stats() *Stats {
	return r.stats
}

// HasBackend reports whether at least one backend is available.
func (r *Router) HasBackend() bool {
	return r.local.Available() || r.cloud.Available()
}

// isComplex reports whether text matches the balanced-mode keyword list.
// Matching is a case-insensitive substring test.
func isComplex(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Route picks the backend for a request without dispatching it. When the
// preferred side is unavailable the other side is returned; nil means no
// backend is available at all.
func (r *Router) Route(text string) *Backend {
	var preferred, other *Backend
	switch r.mode {
	case ModeSpeed:
		preferred, other = r.local, r.cloud
	case ModeQuality:
		preferred, other = r.cloud, r.local
	default: // balanced
		if isComplex(text) && r.cloud.Available() {
			preferred, other = r.cloud, r.local
		} else {
			preferred, other = r.local, r.cloud
		}
	}
	if preferred.Available() {
		return preferred
	}
	if other.Available() {
		return other
	}
	return nil
}

// userContent builds the user message, injecting the scene description when
// one is present.
func userContent(req Request) string {
	if req.Scene == "" {
		return req.Text
	}
	return "[SYSTEM: You see the following: " + req.Scene + "]\n\nUser: " + req.Text
}

// other returns the opposite side of b, or nil.
func (r *Router) other(b *Backend) *Backend {
	if b == r.local {
		return r.cloud
	}
	return r.local
}

// Dispatch routes the request, calls the chosen backend, and fails over to
// the other side exactly once. When both sides fail the returned Reply
// carries the apology text and no error; the error return is reserved for
// context cancellation.
func (r *Router) Dispatch(ctx context.Context, req Request) (Reply, error) {
	primary := r.Route(req.Text)
	if primary == nil {
		return Reply{Text: Apology, Apology: true}, nil
	}

	user := userContent(req)
	messages := append(r.history.Snapshot(), port.Message{Role: port.RoleUser, Content: user})

	text, err := r.complete(ctx, primary, messages)
	if err == nil {
		r.record(req.Text, text, primary.Name)
		return Reply{Text: text, Backend: primary.Name}, nil
	}
	if ctx.Err() != nil {
		return Reply{}, fmt.Errorf("route: dispatch: %w", ctx.Err())
	}
	slog.Warn("backend failed, failing over",
		"backend", primary.Name, "error", err)

	secondary := r.other(primary)
	if secondary.Available() {
		text, err = r.complete(ctx, secondary, messages)
		if err == nil {
			r.record(req.Text, text, secondary.Name)
			return Reply{Text: text, Backend: secondary.Name}, nil
		}
		if ctx.Err() != nil {
			return Reply{}, fmt.Errorf("route: dispatch: %w", ctx.Err())
		}
		slog.Error("all backends failed", "error", err)
	}

	return Reply{Text: Apology, Apology: true}, nil
}

// DispatchStream starts a streaming completion. Streaming is served by the
// cloud backend only; when the cloud is unavailable the local reply is
// produced non-streamed and emitted as a single fragment. The caller handles
// mid-stream failures via [port.Stream.Err].
func (r *Router) DispatchStream(ctx context.Context, req Request) (*port.Stream, string, error) {
	user := userContent(req)
	messages := append(r.history.Snapshot(), port.Message{Role: port.RoleUser, Content: user})

	if r.cloud.Available() {
		r.stats.addRequest(SideCloud)
		if r.metrics != nil {
			r.metrics.RecordBackendRequest(ctx, SideCloud, "llm", "started")
		}
		streamCtx, cancel := context.WithTimeout(ctx, r.cloud.Timeout)
		stream, err := r.cloud.Completer.CompleteStream(streamCtx, messages, r.system)
		if err != nil {
			cancel()
			r.noteFailure(ctx, SideCloud)
			return nil, "", fmt.Errorf("route: stream start: %w", err)
		}

		// Forward fragments so the timeout context is released once the
		// upstream closes; the caller only ever sees the forwarded stream.
		out := make(chan string)
		fwd := port.NewStream(out)
		go func() {
			defer close(out)
			defer cancel()
			for f := range stream.C {
				select {
				case out <- f:
				case <-streamCtx.Done():
					fwd.SetErr(streamCtx.Err())
					return
				}
			}
			if err := stream.Err(); err != nil {
				fwd.SetErr(err)
				r.noteFailure(context.Background(), SideCloud)
			}
		}()
		return fwd, SideCloud, nil
	}

	reply, err := r.Dispatch(ctx, req)
	if err != nil {
		return nil, "", err
	}
	ch := make(chan string, 1)
	ch <- reply.Text
	close(ch)
	return port.NewStream(ch), reply.Backend, nil
}

// RecordExchange appends a completed streamed exchange to the history. The
// non-streamed path records automatically; the streamed path only knows the
// full reply after the stream drains.
func (r *Router) RecordExchange(userText, assistantText, backend string) {
	r.record(userText, assistantText, backend)
}

func (r *Router) complete(ctx context.Context, b *Backend, messages []port.Message) (string, error) {
	r.stats.addRequest(b.Name)
	if r.metrics != nil {
		r.metrics.RecordBackendRequest(ctx, b.Name, "llm", "started")
	}

	callCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	start := time.Now()
	text, err := b.Completer.Complete(callCtx, messages, r.system)
	if r.metrics != nil {
		r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		r.noteFailure(ctx, b.Name)
		return "", fmt.Errorf("route: %s backend: %w", b.Name, err)
	}
	if strings.TrimSpace(text) == "" {
		r.noteFailure(ctx, b.Name)
		return "", fmt.Errorf("route: %s backend: %w", b.Name, port.ErrEmptyResult)
	}
	return text, nil
}

func (r *Router) noteFailure(ctx context.Context, backend string) {
	r.stats.addFailure(backend)
	if r.metrics != nil {
		r.metrics.RecordBackendError(ctx, backend, "llm")
	}
}

// record appends the exchange to history and counts the turn. Only called on
// success; failed turns leave no trace in the history.
func (r *Router) record(userText, assistantText, backend string) {
	r.history.Append(
		port.Message{Role: port.RoleUser, Content: userText},
		port.Message{Role: port.RoleAssistant, Content: assistantText},
	)
	if r.metrics != nil {
		r.metrics.RecordTurn(context.Background(), backend)
	}
}
