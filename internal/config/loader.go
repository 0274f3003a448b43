package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeBalanced
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.ChunkSamples == 0 {
		cfg.Audio.ChunkSamples = 4000
	}
	if cfg.Audio.EnergyThreshold == 0 {
		cfg.Audio.EnergyThreshold = 0.02
	}
	if cfg.Audio.SilenceLimitMs == 0 {
		cfg.Audio.SilenceLimitMs = 2000
	}

	if cfg.Local.OllamaURL == "" {
		cfg.Local.OllamaURL = "http://localhost:11434"
	}
	if cfg.Local.ChatModel == "" {
		cfg.Local.ChatModel = "llama3.2"
	}
	if cfg.Local.VisionModel == "" {
		cfg.Local.VisionModel = "llava"
	}
	if cfg.Local.TimeoutSec == 0 {
		cfg.Local.TimeoutSec = 60
	}

	if cfg.Cloud.BaseURL == "" {
		cfg.Cloud.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Cloud.TimeoutSec == 0 {
		cfg.Cloud.TimeoutSec = 30
	}

	if cfg.Vision.AnalysisIntervalSec == 0 {
		cfg.Vision.AnalysisIntervalSec = 5
	}
	if cfg.Vision.CacheWindowSec == 0 {
		cfg.Vision.CacheWindowSec = 30
	}

	if cfg.Edge.RetryAttempts == 0 {
		cfg.Edge.RetryAttempts = 5
	}
	if cfg.Edge.RetryBackoffMs == 0 {
		cfg.Edge.RetryBackoffMs = 2000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: speed, quality, balanced", cfg.Mode))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_samples must be positive, got %d", cfg.Audio.ChunkSamples))
	}
	if cfg.Audio.EnergyThreshold < 0 || cfg.Audio.EnergyThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.energy_threshold must be within [0, 1], got %v", cfg.Audio.EnergyThreshold))
	}
	if cfg.Audio.SilenceLimitMs < 0 {
		errs = append(errs, fmt.Errorf("audio.silence_limit_ms must not be negative, got %d", cfg.Audio.SilenceLimitMs))
	}

	if cfg.Cloud.Enabled && cfg.Cloud.APIKey == "" {
		slog.Warn("cloud.enabled is set but cloud.api_key is empty; cloud chat will be unavailable")
	}
	if cfg.Cloud.Enabled && cfg.Cloud.ElevenLabsKey != "" && cfg.Cloud.ElevenLabsVoice == "" {
		errs = append(errs, errors.New("cloud.elevenlabs_voice must be set when cloud.elevenlabs_key is provided"))
	}

	if cfg.Mode == ModeQuality && !cfg.Cloud.Enabled {
		slog.Warn("mode is quality but cloud is disabled; requests will stay local")
	}

	if cfg.Edge.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("edge.retry_attempts must not be negative, got %d", cfg.Edge.RetryAttempts))
	}

	return errors.Join(errs...)
}
