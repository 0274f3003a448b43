// Package alsa provides microphone capture and speaker playback through the
// ALSA command-line tools arecord and aplay. Driving the binaries over pipes
// keeps the build cgo-free and works on any Linux box with alsa-utils
// installed, including Raspberry Pi class edge devices.
package alsa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/sycalabs/ava/pkg/audio"
)

// runner abstracts process execution so tests can stub the ALSA binaries.
type runner interface {
	capture(ctx context.Context, device string, rate int) (io.ReadCloser, func() error, error)
	play(ctx context.Context, device string, rate int, pcm []byte) error
}

// execRunner shells out to arecord and aplay.
type execRunner struct{}

func (execRunner) capture(ctx context.Context, device string, rate int) (io.ReadCloser, func() error, error) {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(rate)}
	if device != "" {
		args = append(args, "-D", device)
	}
	cmd := exec.CommandContext(ctx, "arecord", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("alsa: arecord stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("alsa: start arecord: %w", err)
	}
	return stdout, cmd.Wait, nil
}

func (execRunner) play(ctx context.Context, device string, rate int, pcm []byte) error {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(rate)}
	if device != "" {
		args = append(args, "-D", device)
	}
	cmd := exec.CommandContext(ctx, "aplay", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("alsa: aplay stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("alsa: start aplay: %w", err)
	}
	if _, err := stdin.Write(pcm); err != nil {
		stdin.Close()
		cmd.Wait()
		return fmt.Errorf("alsa: write pcm: %w", err)
	}
	stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("alsa: aplay: %w", err)
	}
	return nil
}

// CaptureConfig configures a [Capture].
type CaptureConfig struct {
	// Device is the ALSA device name (e.g. "plughw:1,0"). Empty uses the
	// system default.
	Device string

	// SampleRate in Hz. Defaults to [audio.DefaultSampleRate].
	SampleRate int

	// ChunkSamples is the number of samples per emitted chunk. Defaults to
	// [audio.DefaultChunkSamples].
	ChunkSamples int
}

// Capture reads the microphone via arecord and emits fixed-size chunks.
type Capture struct {
	cfg CaptureConfig
	run runner
}

// NewCapture creates a Capture.
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.ChunkSamples <= 0 {
		cfg.ChunkSamples = audio.DefaultChunkSamples
	}
	return &Capture{cfg: cfg, run: execRunner{}}
}

// Start launches arecord and returns the chunk stream. The channel closes
// when the process exits or ctx is cancelled.
func (c *Capture) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	stdout, wait, err := c.run.capture(ctx, c.cfg.Device, c.cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	out := make(chan audio.Chunk)
	go func() {
		defer close(out)
		defer func() {
			stdout.Close()
			if err := wait(); err != nil && ctx.Err() == nil {
				slog.Warn("arecord exited", "error", err)
			}
		}()

		start := time.Now()
		buf := make([]byte, c.cfg.ChunkSamples*2)
		for {
			if _, err := io.ReadFull(stdout, buf); err != nil {
				if ctx.Err() == nil && !errors.Is(err, io.EOF) {
					slog.Warn("capture read failed", "error", err)
				}
				return
			}
			chunk := audio.Chunk{
				Samples:    audio.Int16ToFloat32(buf),
				SampleRate: c.cfg.SampleRate,
				Timestamp:  time.Since(start),
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Player renders clips through aplay, resampling to the output rate when the
// clip was synthesized at a different one.
type Player struct {
	// Device is the ALSA playback device name. Empty uses the default.
	Device string

	// OutputRate forces playback at a fixed rate. Zero plays clips at their
	// native rate.
	OutputRate int

	run runner
}

// NewPlayer creates a Player.
func NewPlayer(device string, outputRate int) *Player {
	return &Player{Device: device, OutputRate: outputRate, run: execRunner{}}
}

// Play blocks until the clip has been written to the device.
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	pcm := audio.Float32ToInt16(samples)
	rate := sampleRate
	if p.OutputRate > 0 && p.OutputRate != rate {
		pcm = audio.ResampleMono16(pcm, rate, p.OutputRate)
		rate = p.OutputRate
	}
	return p.run.play(ctx, p.Device, rate, pcm)
}
