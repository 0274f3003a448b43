package wire

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/internal/turn"
	"github.com/sycalabs/ava/pkg/audio"
)

// defaultSendQueue bounds the edge send queue in chunks. At 250 ms per chunk
// this is four seconds of audio.
const defaultSendQueue = 16

// EdgeConfig configures the edge streamer.
type EdgeConfig struct {
	// HostURL is the compute host base URL, e.g. "http://192.168.1.100:8000".
	HostURL string

	// RetryAttempts bounds consecutive failed reconnects before giving up.
	RetryAttempts int

	// RetryBackoff is the fixed delay between reconnect attempts.
	RetryBackoff time.Duration

	// SendQueue is the bounded outgoing chunk queue size. Defaults to
	// defaultSendQueue.
	SendQueue int
}

// Edge captures nothing itself; it pumps chunks from the capture channel to
// the host and plays downstream audio frames in arrival order.
type Edge struct {
	cfg     EdgeConfig
	player  turn.Player
	metrics *observe.Metrics
}

// NewEdge creates an edge streamer that plays reply audio through player.
func NewEdge(cfg EdgeConfig, player turn.Player, metrics *observe.Metrics) *Edge {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	return &Edge{cfg: cfg, player: player, metrics: metrics}
}

// streamURL converts the host base URL into the websocket endpoint.
func (e *Edge) streamURL() string {
	base := strings.TrimSuffix(e.cfg.HostURL, "/")
	return base + "/audio/stream"
}

// Run streams until ctx is cancelled or the reconnect budget is exhausted.
// A session that connected successfully resets the budget; each retry waits
// the fixed backoff.
func (e *Edge) Run(ctx context.Context, chunks <-chan audio.Chunk) error {
	attempts := 0
	for {
		connected, err := e.session(ctx, chunks)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempts = 0
		}
		attempts++
		if attempts > e.cfg.RetryAttempts {
			return fmt.Errorf("wire: giving up after %d reconnect attempts: %w",
				e.cfg.RetryAttempts, err)
		}
		slog.Warn("connection lost, retrying",
			"attempt", attempts, "max", e.cfg.RetryAttempts, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.cfg.RetryBackoff):
		}
	}
}

// session runs one connection. The first return value reports whether the
// dial succeeded, so the caller can reset its retry budget.
func (e *Edge) session(ctx context.Context, chunks <-chan audio.Chunk) (bool, error) {
	conn, _, err := websocket.Dial(ctx, e.streamURL(), nil)
	if err != nil {
		return false, fmt.Errorf("wire: dial %q: %w", e.streamURL(), err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "edge shutdown")
	slog.Info("connected to host", "url", e.streamURL())

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sendQ := make(chan audio.Chunk, e.cfg.SendQueue)

	g, gctx := errgroup.WithContext(sessCtx)

	// Pump: capture never blocks; a full queue drops the newest chunk.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case chunk, ok := <-chunks:
				if !ok {
					return nil
				}
				select {
				case sendQ <- chunk:
				default:
					if e.metrics != nil {
						e.metrics.DroppedChunks.Add(gctx, 1)
					}
					slog.Debug("send queue full, dropping chunk")
				}
			}
		}
	})

	// Writer: binary frames of raw PCM.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case chunk := <-sendQ:
				pcm := audio.Float32ToInt16(chunk.Samples)
				if err := conn.Write(gctx, websocket.MessageBinary, pcm); err != nil {
					return fmt.Errorf("wire: send chunk: %w", err)
				}
			}
		}
	})

	// Reader: downstream frames, played in arrival order.
	g.Go(func() error {
		for {
			msgType, data, err := conn.Read(gctx)
			if err != nil {
				return fmt.Errorf("wire: receive: %w", err)
			}
			if msgType != websocket.MessageText {
				continue
			}
			frame, err := ParseFrame(data)
			if err != nil {
				slog.Warn("bad downstream frame", "error", err)
				continue
			}
			switch frame.Type {
			case TypeText:
				slog.Info("assistant reply", "text", frame.Text)
			case TypeAudio:
				samples, rate, err := frame.Samples()
				if err != nil {
					slog.Warn("bad audio frame", "error", err)
					continue
				}
				if err := e.player.Play(gctx, samples, rate); err != nil {
					slog.Error("playback failed", "error", err)
				}
			}
		}
	})

	return true, g.Wait()
}
