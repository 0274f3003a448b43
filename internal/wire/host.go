package wire

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/sycalabs/ava/internal/endpoint"
	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/internal/route"
	"github.com/sycalabs/ava/internal/turn"
	"github.com/sycalabs/ava/internal/vision"
	"github.com/sycalabs/ava/pkg/audio"
	"github.com/sycalabs/ava/pkg/port"
)

// writeTimeout bounds a single downstream frame write.
const writeTimeout = 30 * time.Second

// HostConfig carries the endpointing parameters applied to each connection.
type HostConfig struct {
	SampleRate      int
	EnergyThreshold float64
	SilenceLimit    time.Duration
}

// Deps are the pipeline dependencies shared across connections.
type Deps struct {
	Transcriber         port.Transcriber
	TranscriberFallback port.Transcriber
	Synthesizer         port.Synthesizer
	SynthesizerFallback port.Synthesizer
	Router              *route.Router
	Vision              *vision.Analyzer
	Metrics             *observe.Metrics
}

// Host accepts edge connections and runs the full pipeline per utterance.
//
// Each connection owns its own endpoint detector. The detector runs without
// a self-output gate: the edge plays the reply audio and the host cannot
// know when that playback starts or stops, so host-side suppression of the
// assistant's own voice is not possible in this topology.
type Host struct {
	cfg  HostConfig
	deps Deps
}

// NewHost creates a Host.
func NewHost(cfg HostConfig, deps Deps) *Host {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	return &Host{cfg: cfg, deps: deps}
}

// Handler returns the websocket endpoint for /audio/stream.
func (h *Host) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", "error", err)
			return
		}
		h.serve(r.Context(), conn)
	})
}

// serve runs one connection until the edge disconnects or an exit intent
// ends the session.
func (h *Host) serve(ctx context.Context, conn *websocket.Conn) {
	slog.Info("edge connected")
	if h.deps.Metrics != nil {
		h.deps.Metrics.ActiveConnections.Add(ctx, 1)
		defer h.deps.Metrics.ActiveConnections.Add(ctx, -1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sender := &frameSender{conn: conn}

	controller := turn.New(turn.Config{
		Transcriber:         h.deps.Transcriber,
		TranscriberFallback: h.deps.TranscriberFallback,
		Synthesizer:         h.deps.Synthesizer,
		SynthesizerFallback: h.deps.SynthesizerFallback,
		Router:              h.deps.Router,
		Vision:              h.deps.Vision,
		Metrics:             h.deps.Metrics,
		Player:              sender,
		OnReply:             func(text string) { sender.sendText(ctx, text) },
		OnExit:              cancel,
	})

	detector := endpoint.NewDetector(h.cfg.EnergyThreshold, h.cfg.SilenceLimit)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				slog.Info("edge disconnected")
			} else {
				slog.Warn("edge read failed", "error", err)
			}
			conn.Close(websocket.StatusNormalClosure, "session over")
			return
		}
		if msgType != websocket.MessageBinary {
			slog.Debug("ignoring non-binary upstream message")
			continue
		}

		chunk := audio.Chunk{
			Samples:    audio.Int16ToFloat32(data),
			SampleRate: h.cfg.SampleRate,
		}
		if u := detector.Feed(chunk); u != nil {
			// The turn runs off the read loop so capture keeps flowing;
			// overlapping utterances are dropped by the controller.
			go controller.HandleUtterance(ctx, u)
		}
	}
}

// frameSender serialises downstream writes. The text frame of a reply always
// precedes its audio frames because both are written from the turn
// goroutine.
type frameSender struct {
	conn *websocket.Conn
}

func (s *frameSender) sendText(ctx context.Context, text string) {
	if err := s.write(ctx, TextFrame(text)); err != nil {
		slog.Warn("text frame send failed", "error", err)
	}
}

// Play implements the turn player by shipping the clip to the edge as one
// audio frame. It does not wait for edge-side playback; ordering is
// preserved by the websocket stream itself.
func (s *frameSender) Play(ctx context.Context, samples []float32, sampleRate int) error {
	return s.write(ctx, AudioFrame(samples, sampleRate))
}

func (s *frameSender) write(ctx context.Context, f Frame) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, data)
}
