// Package app wires the co-located pipeline: capture, endpointing, turn
// handling, and background vision, all under one lifecycle.
//
// Three loops run concurrently. The capture pump drains the device and never
// blocks; chunks overflowing the bounded buffer are dropped newest-first and
// counted. The pipeline loop feeds the endpoint detector and runs each
// finalised utterance through the turn controller, blocking on playback. The
// vision loop refreshes the scene cache in the background.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sycalabs/ava/internal/endpoint"
	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/internal/turn"
	"github.com/sycalabs/ava/internal/vision"
	"github.com/sycalabs/ava/pkg/audio"
)

// defaultChunkBuffer bounds the capture-to-pipeline channel in chunks.
const defaultChunkBuffer = 32

// ErrExit reports a user-requested session end. The caller treats it as a
// clean shutdown.
var ErrExit = errors.New("app: session ended by exit intent")

// Capture produces audio chunks from the input device. Start returns a
// channel that closes when the device stops or ctx is cancelled.
type Capture interface {
	Start(ctx context.Context) (<-chan audio.Chunk, error)
}

// Config assembles an [App].
type Config struct {
	// Capture is the input device.
	Capture Capture

	// Detector finalises utterances. Its gate should be the controller's.
	Detector *endpoint.Detector

	// Controller runs each turn.
	Controller *turn.Controller

	// Vision is the optional background analyzer.
	Vision *vision.Analyzer

	// Metrics is optional.
	Metrics *observe.Metrics

	// ChunkBuffer overrides the capture channel size. Defaults to
	// defaultChunkBuffer.
	ChunkBuffer int
}

// App owns the main loops of the co-located topology.
type App struct {
	cfg  Config
	exit context.CancelCauseFunc
}

// New creates an App.
func New(cfg Config) (*App, error) {
	if cfg.Capture == nil {
		return nil, errors.New("app: capture is required")
	}
	if cfg.Detector == nil || cfg.Controller == nil {
		return nil, errors.New("app: detector and controller are required")
	}
	if cfg.ChunkBuffer <= 0 {
		cfg.ChunkBuffer = defaultChunkBuffer
	}
	return &App{cfg: cfg}, nil
}

// ExitFunc returns the callback to install as the turn controller's OnExit.
// It must be wired before Run is called.
func (a *App) ExitFunc() func() {
	return func() {
		if a.exit != nil {
			a.exit(ErrExit)
		}
	}
}

// Run executes the loops until ctx is cancelled or an exit intent ends the
// session. A clean exit returns nil.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	a.exit = cancel
	defer cancel(nil)

	raw, err := a.cfg.Capture.Start(ctx)
	if err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	chunks := make(chan audio.Chunk, a.cfg.ChunkBuffer)

	g, gctx := errgroup.WithContext(ctx)

	// Capture pump. Dropping the newest chunk keeps latency bounded when
	// the pipeline stalls in playback.
	g.Go(func() error {
		defer close(chunks)
		for {
			select {
			case <-gctx.Done():
				return nil
			case chunk, ok := <-raw:
				if !ok {
					return errors.New("app: capture stream ended")
				}
				select {
				case chunks <- chunk:
				default:
					if a.cfg.Metrics != nil {
						a.cfg.Metrics.DroppedChunks.Add(gctx, 1)
					}
					slog.Debug("chunk buffer full, dropping chunk")
				}
			}
		}
	})

	// Pipeline loop. HandleUtterance blocks through playback; capture keeps
	// flowing into the bounded buffer meanwhile.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case chunk, ok := <-chunks:
				if !ok {
					return nil
				}
				if u := a.cfg.Detector.Feed(chunk); u != nil {
					a.cfg.Controller.HandleUtterance(gctx, u)
				}
			}
		}
	})

	if a.cfg.Vision != nil && a.cfg.Vision.Enabled() {
		g.Go(func() error {
			return a.cfg.Vision.Run(gctx)
		})
	}

	err = g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, ErrExit) {
		slog.Info("session ended by user")
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
