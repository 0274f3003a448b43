// Command ava runs the co-located voice assistant: microphone, endpointing,
// routing, synthesis, and playback in one process on one machine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sycalabs/ava/internal/app"
	"github.com/sycalabs/ava/internal/config"
	"github.com/sycalabs/ava/internal/endpoint"
	"github.com/sycalabs/ava/internal/health"
	"github.com/sycalabs/ava/internal/observe"
	"github.com/sycalabs/ava/internal/route"
	"github.com/sycalabs/ava/internal/turn"
	"github.com/sycalabs/ava/internal/vision"
	"github.com/sycalabs/ava/pkg/audio/alsa"
	"github.com/sycalabs/ava/pkg/port"
	"github.com/sycalabs/ava/pkg/port/anyllm"
	"github.com/sycalabs/ava/pkg/port/coqui"
	"github.com/sycalabs/ava/pkg/port/elevenlabs"
	"github.com/sycalabs/ava/pkg/port/ollama"
	"github.com/sycalabs/ava/pkg/port/openai"
	"github.com/sycalabs/ava/pkg/port/whisper"
)

// probeTimeout bounds the startup availability probes against the local
// servers.
const probeTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	micDevice := flag.String("mic", "", "ALSA capture device (e.g. plughw:1,0)")
	speakerDevice := flag.String("speaker", "", "ALSA playback device")
	cameraDevice := flag.String("camera", "", "V4L2 camera device (e.g. /dev/video0)")
	noVision := flag.Bool("no-vision", false, "disable background scene analysis")
	streaming := flag.Bool("streaming", true, "speak sentences while the reply is still generating")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ava: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ava: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("ava starting", "config", *configPath, "mode", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "ava"})
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

	p, err := buildPipeline(ctx, cfg, metrics)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	var analyzer *vision.Analyzer
	if !*noVision {
		analyzer = vision.New(
			vision.NewWebcam(*cameraDevice),
			p.localVision, p.remoteVision,
			cfg.Vision.AnalysisInterval(), cfg.Vision.CacheWindow(),
			vision.WithMetrics(metrics),
		)
	}

	player := alsa.NewPlayer(*speakerDevice, 0)

	var exitFn func()
	controller := turn.New(turn.Config{
		Transcriber:         p.stt,
		TranscriberFallback: p.sttFallback,
		Synthesizer:         p.tts,
		SynthesizerFallback: p.ttsFallback,
		Router:              p.router,
		Vision:              analyzer,
		Player:              player,
		Streaming:           *streaming,
		Metrics:             metrics,
		OnExit: func() {
			if exitFn != nil {
				exitFn()
			}
		},
	})

	detector := endpoint.NewDetector(
		cfg.Audio.EnergyThreshold,
		cfg.Audio.SilenceLimit(),
		endpoint.WithGate(controller.Gate()),
	)

	capture := alsa.NewCapture(alsa.CaptureConfig{
		Device:       *micDevice,
		SampleRate:   cfg.Audio.SampleRate,
		ChunkSamples: cfg.Audio.ChunkSamples,
	})

	application, err := app.New(app.Config{
		Capture:    capture,
		Detector:   detector,
		Controller: controller,
		Vision:     analyzer,
		Metrics:    metrics,
	})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	exitFn = application.ExitFunc()

	printStartupSummary(cfg, p, analyzer.Enabled())
	slog.Info("listening; say \"goodbye\" or press Ctrl+C to stop")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// pipeline holds the constructed backend ports shared by the turn
// controller and the vision analyzer.
type pipeline struct {
	router       *route.Router
	stt          port.Transcriber
	sttFallback  port.Transcriber
	tts          port.Synthesizer
	ttsFallback  port.Synthesizer
	localVision  port.Describer
	remoteVision port.Describer

	localUp bool
	cloudUp bool
}

// buildPipeline constructs every configured backend, probes the local
// servers, and fails only when no chat backend at all is usable.
func buildPipeline(ctx context.Context, cfg *config.Config, metrics *observe.Metrics) (*pipeline, error) {
	p := &pipeline{}

	// Local chat backend over Ollama.
	localCompleter, err := anyllm.NewOllama(cfg.Local.OllamaURL, cfg.Local.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("local chat backend: %w", err)
	}
	local := &route.Backend{
		Name:      route.SideLocal,
		Completer: localCompleter,
		Timeout:   cfg.Local.Timeout(),
	}
	p.localUp = probe(ctx, "ollama", cfg.Local.OllamaURL+"/api/tags")
	local.SetAvailable(p.localUp)

	// Cloud chat backend over an OpenAI-compatible API.
	var cloud *route.Backend
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
		p.cloudUp = true
	}

	p.router = route.New(route.Mode(cfg.Mode), local, cloud, route.DefaultSystemPrompt, metrics)
	if !p.router.HasBackend() {
		return nil, errors.New("no chat backend available: ollama is unreachable and the cloud side is not configured")
	}

	// Speech recognition: local whisper-server, cloud transcription as
	// fallback when credentials exist.
	p.stt, err = whisper.New(cfg.Local.WhisperURL, whisper.WithTimeout(cfg.Local.Timeout()))
	if err != nil {
		return nil, fmt.Errorf("local stt backend: %w", err)
	}
	if !probe(ctx, "whisper-server", cfg.Local.WhisperURL) {
		slog.Warn("whisper-server unreachable, transcription will rely on the fallback")
	}

	if p.cloudUp {
		remote, err := openai.New(cfg.Cloud.APIKey,
			openai.WithBaseURL(cfg.Cloud.BaseURL),
			openai.WithVisionModel(cfg.Cloud.VisionModel),
			openai.WithTimeout(cfg.Cloud.Timeout()),
		)
		if err != nil {
			return nil, fmt.Errorf("cloud speech backend: %w", err)
		}
		p.sttFallback = remote
		p.remoteVision = remote
	}

	// Synthesis: local Coqui server, ElevenLabs as fallback.
	p.tts, err = coqui.New(cfg.Local.TTSURL)
	if err != nil {
		return nil, fmt.Errorf("local tts backend: %w", err)
	}
	if !probe(ctx, "coqui", cfg.Local.TTSURL) {
		slog.Warn("coqui server unreachable, synthesis will rely on the fallback")
	}
	if cfg.Cloud.ElevenLabsKey != "" && cfg.Cloud.ElevenLabsVoice != "" {
		p.ttsFallback, err = elevenlabs.New(cfg.Cloud.ElevenLabsKey, cfg.Cloud.ElevenLabsVoice)
		if err != nil {
			return nil, fmt.Errorf("remote tts backend: %w", err)
		}
	}

	// Vision description: local Ollama vision model.
	if cfg.Local.VisionModel != "" {
		p.localVision, err = ollama.New(cfg.Local.OllamaURL, cfg.Local.VisionModel,
			ollama.WithTimeout(cfg.Local.Timeout()))
		if err != nil {
			return nil, fmt.Errorf("local vision backend: %w", err)
		}
	}

	return p, nil
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

func printStartupSummary(cfg *config.Config, p *pipeline, visionOn bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           Ava startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Mode", string(cfg.Mode))
	printRow("Local chat", summarise(p.localUp, cfg.Local.ChatModel))
	printRow("Cloud chat", summarise(p.cloudUp, cfg.Cloud.ChatModel))
	printRow("Local STT", cfg.Local.WhisperURL)
	printRow("Local TTS", cfg.Local.TTSURL)
	if p.ttsFallback != nil {
		printRow("Cloud TTS", "elevenlabs")
	} else {
		printRow("Cloud TTS", "(disabled)")
	}
	if visionOn {
		printRow("Vision", cfg.Local.VisionModel)
	} else {
		printRow("Vision", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s : %-19s  ║\n", kind, value)
}

func summarise(up bool, model string) string {
	if !up {
		return "(unavailable)"
	}
	return model
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
