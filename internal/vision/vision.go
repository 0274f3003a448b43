// Package vision runs background scene analysis so a turn that asks about
// the surroundings can be answered from a fresh cached description instead
// of blocking on a camera capture and a vision model call.
package vision

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/pkg/port"
)

// scenePrompt is the fixed question posed to the vision model on each
// background analysis.
const scenePrompt = "Describe what you see in one or two short sentences."

// visionKeywords mark a transcript as referring to the scene. Matching is a
// case-insensitive substring test, same as the routing keywords.
var visionKeywords = []string{
	"see", "look", "view", "front", "camera", "what", "holding", "show",
}

// WantsScene reports whether the transcript refers to the visual scene and
// should have the cached description injected.
func WantsScene(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range visionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Source captures still images from the camera.
type Source interface {
	// Capture grabs one frame. An empty ImageRef with nil error means no
	// frame was available.
	Capture(ctx context.Context) (port.ImageRef, error)
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithClock replaces the wall clock for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// Analyzer periodically captures a frame, describes it, and caches the
// description. Lookups are read-mostly; one analysis runs at a time and
// ticks that land while one is in flight are skipped.
type Analyzer struct {
	source   Source
	local    port.Describer
	remote   port.Describer
	interval time.Duration
	window   time.Duration
	metrics  *observe.Metrics
	now      func() time.Time

	mu   sync.RWMutex
	desc string
	at   time.Time
	busy bool
}

// New creates an Analyzer. Either describer may be nil; when both are nil or
// source is nil the analyzer is inert and [Analyzer.Cached] always misses.
func New(source Source, local, remote port.Describer, interval, window time.Duration, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:   source,
		local:    local,
		remote:   remote,
		interval: interval,
		window:   window,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether the analyzer has a source and at least one
// describer.
func (a *Analyzer) Enabled() bool {
	return a != nil && a.source != nil && (a.local != nil || a.remote != nil)
}

// Run analyses the scene on the configured interval until ctx is cancelled.
// Returns nil on cancellation; an inert analyzer returns immediately.
func (a *Analyzer) Run(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !a.tryAcquire() {
				continue
			}
			a.analyze(ctx)
			a.release()
		}
	}
}

// AnalyzeOnce performs one immediate analysis, skipping when one is already
// in flight. Returns whether the analysis ran.
func (a *Analyzer) AnalyzeOnce(ctx context.Context) bool {
	if !a.Enabled() || !a.tryAcquire() {
		return false
	}
	defer a.release()
	a.analyze(ctx)
	return true
}

// Cached returns the latest description when it is younger than the cache
// window.
func (a *Analyzer) Cached() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.desc == "" || a.now().Sub(a.at) > a.window {
		return "", false
	}
	return a.desc, true
}

func (a *Analyzer) tryAcquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return false
	}
	a.busy = true
	return true
}

func (a *Analyzer) release() {
	a.mu.Lock()
	a.busy = false
	a.mu.Unlock()
}

func (a *Analyzer) analyze(ctx context.Context) {
	img, err := a.source.Capture(ctx)
	if err != nil {
		slog.Warn("scene capture failed", "error", err)
		return
	}
	if img.Empty() {
		return
	}

	start := time.Now()
	desc, err := a.describe(ctx, img)
	if a.metrics != nil {
		a.metrics.VisionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Warn("scene description failed", "error", err)
		return
	}

	a.mu.Lock()
	a.desc = desc
	a.at = a.now()
	a.mu.Unlock()
	slog.Debug("scene cached", "length", len(desc))
}

// describe tries the local describer first and falls back to the remote one.
func (a *Analyzer) describe(ctx context.Context, img port.ImageRef) (string, error) {
	var firstErr error
	if a.local != nil {
		desc, err := a.local.Describe(ctx, img, scenePrompt)
		if err == nil && strings.TrimSpace(desc) != "" {
			return desc, nil
		}
		if err == nil {
			err = port.ErrEmptyResult
		}
		firstErr = err
		if a.metrics != nil {
			a.metrics.RecordBackendError(ctx, "local", "vision")
		}
	}
	if a.remote != nil {
		desc, err := a.remote.Describe(ctx, img, scenePrompt)
		if err == nil && strings.TrimSpace(desc) != "" {
			return desc, nil
		}
		if err == nil {
			err = port.ErrEmptyResult
		}
		if a.metrics != nil {
			a.metrics.RecordBackendError(ctx, "cloud", "vision")
		}
		return "", err
	}
	return "", firstErr
}
