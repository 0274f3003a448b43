// Package config provides the configuration schema and loader for the Ava
// voice assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects the routing strategy between the local and cloud backends.
type Mode string

const (
	// ModeSpeed always routes to the local backend.
	ModeSpeed Mode = "speed"

	// ModeQuality always routes to the cloud backend.
	ModeQuality Mode = "quality"

	// ModeBalanced routes complex requests to the cloud when it is
	// available and everything else locally.
	ModeBalanced Mode = "balanced"
)

// IsValid reports whether m is a recognised routing mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSpeed, ModeQuality, ModeBalanced:
		return true
	}
	return false
}

// Config is the root configuration structure for Ava.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Mode   Mode         `yaml:"mode"`
	Audio  AudioConfig  `yaml:"audio"`
	Local  LocalConfig  `yaml:"local"`
	Cloud  CloudConfig  `yaml:"cloud"`
	Vision VisionConfig `yaml:"vision"`
	Edge   EdgeConfig   `yaml:"edge"`
}

// ServerConfig holds network and logging settings for the host process.
type ServerConfig struct {
	// ListenAddr is the TCP address the split-topology host listens on
	// (e.g. ":8000"). Unused by the co-located binary.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds capture and endpointing parameters.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSamples is the number of samples per captured chunk.
	// Default 4000 (250 ms at 16 kHz).
	ChunkSamples int `yaml:"chunk_samples"`

	// EnergyThreshold is the RMS level on the normalised [-1, 1] scale at
	// or above which a chunk counts as speech. Default 0.02.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// SilenceLimitMs is how long trailing silence must last before an
	// utterance is finalised, in milliseconds. Default 2000.
	SilenceLimitMs int `yaml:"silence_limit_ms"`
}

// SilenceLimit returns the configured silence limit as a duration.
func (a AudioConfig) SilenceLimit() time.Duration {
	return time.Duration(a.SilenceLimitMs) * time.Millisecond
}

// LocalConfig declares the on-device/co-located backend endpoints.
type LocalConfig struct {
	// OllamaURL is the base URL of the local Ollama server.
	// Default "http://localhost:11434".
	OllamaURL string `yaml:"ollama_url"`

	// ChatModel is the local chat model name (e.g. "llama3.2").
	ChatModel string `yaml:"chat_model"`

	// VisionModel is the local vision model name (e.g. "llava").
	VisionModel string `yaml:"vision_model"`

	// WhisperURL is the base URL of the local whisper-server instance.
	WhisperURL string `yaml:"whisper_url"`

	// TTSURL is the base URL of the local Coqui TTS server.
	TTSURL string `yaml:"tts_url"`

	// TimeoutSec bounds a single local inference call. Default 60.
	TimeoutSec int `yaml:"timeout_sec"`
}

// Timeout returns the local inference timeout as a duration.
func (l LocalConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

// CloudConfig declares the remote backend. The cloud side is optional; when
// Enabled is false, or required credentials are missing, Ava runs local-only.
type CloudConfig struct {
	// Enabled turns the cloud fallback on.
	Enabled bool `yaml:"enabled"`

	// APIKey authenticates against the OpenAI-compatible chat endpoint.
	APIKey string `yaml:"api_key"`

	// BaseURL is the OpenAI-compatible API root
	// (default "https://openrouter.ai/api/v1").
	BaseURL string `yaml:"base_url"`

	// ChatModel is the remote chat model identifier.
	ChatModel string `yaml:"chat_model"`

	// VisionModel is the remote vision model identifier.
	VisionModel string `yaml:"vision_model"`

	// ElevenLabsKey authenticates the remote TTS voice stream.
	ElevenLabsKey string `yaml:"elevenlabs_key"`

	// ElevenLabsVoice is the remote TTS voice identifier.
	ElevenLabsVoice string `yaml:"elevenlabs_voice"`

	// TimeoutSec bounds a single cloud inference call. Default 30,
	// stricter than local because a slow cloud call should fail over.
	TimeoutSec int `yaml:"timeout_sec"`
}

// Timeout returns the cloud inference timeout as a duration.
func (c CloudConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// VisionConfig tunes the background scene analyzer.
type VisionConfig struct {
	// AnalysisIntervalSec is the minimum spacing between background scene
	// analyses, in seconds. Default 5.
	AnalysisIntervalSec int `yaml:"analysis_interval_sec"`

	// CacheWindowSec is how long a cached scene description stays fresh
	// enough to inject into a turn, in seconds. Default 30.
	CacheWindowSec int `yaml:"cache_window_sec"`
}

// AnalysisInterval returns the analysis interval as a duration.
func (v VisionConfig) AnalysisInterval() time.Duration {
	return time.Duration(v.AnalysisIntervalSec) * time.Second
}

// CacheWindow returns the cache freshness window as a duration.
func (v VisionConfig) CacheWindow() time.Duration {
	return time.Duration(v.CacheWindowSec) * time.Second
}

// EdgeConfig configures the split-topology edge streamer.
type EdgeConfig struct {
	// HostURL is the compute host base URL (e.g. "http://192.168.1.100:8000").
	HostURL string `yaml:"host_url"`

	// RetryAttempts bounds reconnection attempts after a transport
	// disconnect. Default 5.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoffMs is the fixed delay between reconnection attempts, in
	// milliseconds. Default 2000.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// RetryBackoff returns the reconnect backoff as a duration.
func (e EdgeConfig) RetryBackoff() time.Duration {
	return time.Duration(e.RetryBackoffMs) * time.Millisecond
}
