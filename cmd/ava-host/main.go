// Command ava-host runs the compute half of the split topology: an HTTP
// server that accepts edge audio streams over websocket and runs the full
// understand-and-respond pipeline for each connection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sycalabs/ava/internal/config"
	"github.com/sycalabs/ava/internal/health"
	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/internal/route"
	"github.com/sycalabs/ava/internal/wire"
	"github.com/sycalabs/ava/pkg/port/anyllm"
	"github.com/sycalabs/ava/pkg/port/coqui"
	"github.com/sycalabs/ava/pkg/port/elevenlabs"
	"github.com/sycalabs/ava/pkg/port/openai"
	"github.com/sycalabs/ava/pkg/port/whisper"
)

const (
	defaultListenAddr = ":8000"
	probeTimeout      = 5 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ava-host: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	slog.Info("ava-host starting", "config", *configPath, "listen_addr", addr, "mode", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "ava-host"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	deps, err := buildDeps(ctx, cfg, metrics)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	host := wire.NewHost(wire.HostConfig{
		SampleRate:      cfg.Audio.SampleRate,
		EnergyThreshold: cfg.Audio.EnergyThreshold,
		SilenceLimit:    cfg.Audio.SilenceLimit(),
	}, *deps)

	checks := health.New(
		health.HTTPChecker("ollama", cfg.Local.OllamaURL+"/api/tags"),
		health.HTTPChecker("whisper-server", cfg.Local.WhisperURL),
		health.HTTPChecker("coqui", cfg.Local.TTSURL),
	)

	mux := http.NewServeMux()
	mux.Handle("/audio/stream", host.Handler())
	mux.Handle("GET /metrics", promhttp.Handler())
	checks.Register(mux)

	srv := &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(metrics)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready; press Ctrl+C to shut down")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildDeps constructs the shared pipeline dependencies handed to every
// edge connection.
func buildDeps(ctx context.Context, cfg *config.Config, metrics *observe.Metrics) (*wire.Deps, error) {
	deps := &wire.Deps{Metrics: metrics}

	localCompleter, err := anyllm.NewOllama(cfg.Local.OllamaURL, cfg.Local.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("local chat backend: %w", err)
	}
	local := &route.Backend{
		Name:      route.SideLocal,
		Completer: localCompleter,
		Timeout:   cfg.Local.Timeout(),
	}
	local.SetAvailable(probe(ctx, "ollama", cfg.Local.OllamaURL+"/api/tags"))

	var cloud *route.Backend
	var remote *openai.Client
	if cfg.Cloud.Enabled && cfg.Cloud.APIKey != "" {
		cloudCompleter, err := anyllm.NewOpenAI(cfg.Cloud.APIKey, cfg.Cloud.BaseURL, cfg.Cloud.ChatModel)
		if err != nil {
			return nil, fmt.Errorf("cloud chat backend: %w", err)
		}
		cloud = &route.Backend{
			Name:      route.SideCloud,
			Completer: cloudCompleter,
			Timeout:   cfg.Cloud.Timeout(),
		}
		cloud.SetAvailable(true)

		remote, err = openai.New(cfg.Cloud.APIKey,
			openai.WithBaseURL(cfg.Cloud.BaseURL),
			openai.WithVisionModel(cfg.Cloud.VisionModel),
			openai.WithTimeout(cfg.Cloud.Timeout()),
		)
		if err != nil {
			return nil, fmt.Errorf("cloud speech backend: %w", err)
		}
	}

	deps.Router = route.New(route.Mode(cfg.Mode), local, cloud, route.DefaultSystemPrompt, metrics)
	if !deps.Router.HasBackend() {
		return nil, errors.New("no chat backend available: ollama is unreachable and the cloud side is not configured")
	}

	deps.Transcriber, err = whisper.New(cfg.Local.WhisperURL, whisper.WithTimeout(cfg.Local.Timeout()))
	if err != nil {
		return nil, fmt.Errorf("local stt backend: %w", err)
	}
	if remote != nil {
		deps.TranscriberFallback = remote
	}

	deps.Synthesizer, err = coqui.New(cfg.Local.TTSURL)
	if err != nil {
		return nil, fmt.Errorf("local tts backend: %w", err)
	}
	if cfg.Cloud.ElevenLabsKey != "" && cfg.Cloud.ElevenLabsVoice != "" {
		fallback, err := elevenlabs.New(cfg.Cloud.ElevenLabsKey, cfg.Cloud.ElevenLabsVoice)
		if err != nil {
			return nil, fmt.Errorf("remote tts backend: %w", err)
		}
		deps.SynthesizerFallback = fallback
	}

	return deps, nil
}

// probe reports whether a local server answers HTTP at all.
func probe(ctx context.Context, name, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := health.HTTPChecker(name, url).Check(probeCtx); err != nil {
		slog.Warn("backend probe failed", "backend", name, "err", err)
		return false
	}
	slog.Info("backend reachable", "backend", name)
	return true
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
