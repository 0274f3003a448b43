// Command ava-edge runs the device half of the split topology: it streams
// microphone audio to a compute host and plays the replies, nothing more.
// It is meant for small boards that cannot run the models themselves.
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

	"github.com/sycalabs/ava/internal/config"
	"github.com/sycalabs/ava/internal/wire"
	"github.com/sycalabs/ava/pkg/audio/alsa"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	hostURL := flag.String("host", "", "compute host base URL (overrides edge.host_url)")
	micDevice := flag.String("mic", "", "ALSA capture device (e.g. plughw:1,0)")
	speakerDevice := flag.String("speaker", "", "ALSA playback device")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ava-edge: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	url := cfg.Edge.HostURL
	if *hostURL != "" {
		url = *hostURL
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "ava-edge: no host URL configured; set edge.host_url or pass -host")
		return 1
	}
	slog.Info("ava-edge starting", "host", url)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	capture := alsa.NewCapture(alsa.CaptureConfig{
		Device:       *micDevice,
		SampleRate:   cfg.Audio.SampleRate,
		ChunkSamples: cfg.Audio.ChunkSamples,
	})
	chunks, err := capture.Start(ctx)
	if err != nil {
		slog.Error("failed to start capture", "err", err)
		return 1
	}

	edge := wire.NewEdge(wire.EdgeConfig{
		HostURL:       url,
		RetryAttempts: cfg.Edge.RetryAttempts,
		RetryBackoff:  cfg.Edge.RetryBackoff(),
	}, alsa.NewPlayer(*speakerDevice, 0), nil)

	if err := edge.Run(ctx, chunks); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("edge stopped", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
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
