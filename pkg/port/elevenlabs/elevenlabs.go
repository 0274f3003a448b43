// Package elevenlabs provides a remote [port.Synthesizer] backed by the
// ElevenLabs streaming WebSocket API. Each Synthesize call opens a stream,
// submits one text segment, and collects the PCM frames into a single clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/sycalabs/ava/pkg/audio"
	"github.com/sycalabs/ava/pkg/port"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

var _ port.Synthesizer = (*Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the ElevenLabs model ID (e.g. "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithOutputFormat sets the audio output format (e.g. "pcm_16000",
// "pcm_24000"). Only raw PCM formats are supported.
func WithOutputFormat(format string) Option {
	return func(c *Client) { c.outputFormat = format }
}

// WithBaseURL overrides the API base URL, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// Client implements [port.Synthesizer] against ElevenLabs. Safe for
// concurrent use; each call owns its own connection.
type Client struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	baseURL      string
}

// New creates a Client for the given voice. apiKey and voiceID must be
// non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	c := &Client{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	if _, err := pcmRate(c.outputFormat); err != nil {
		return nil, err
	}
	return c, nil
}

// pcmRate extracts the sample rate from a "pcm_<rate>" output format.
func pcmRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q, want pcm_<rate>", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q, want pcm_<rate>", format)
	}
	return rate, nil
}

// textMessage is the JSON payload for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// audioResponse is a downstream message on the stream.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// streamURL builds the stream-input endpoint for the configured voice.
func (c *Client) streamURL() string {
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s",
		c.baseURL, c.voiceID, c.model)
}

// Synthesize implements [port.Synthesizer].
func (c *Client) Synthesize(ctx context.Context, text string) (*port.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, port.ErrEmptyResult
	}
	rate, err := pcmRate(c.outputFormat)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, c.streamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	boi, _ := json.Marshal(boiMessage{
		// The first text value must be non-empty.
		Text:          " ",
		VoiceSettings: vs,
		XiAPIKey:      c.apiKey,
		OutputFormat:  c.outputFormat,
	})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	// Trailing space helps the server treat the segment as complete.
	payload, _ := json.Marshal(textMessage{Text: text + " ", VoiceSettings: vs})
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("elevenlabs: send text: %w", err)
	}

	// An empty text value flushes and ends generation.
	flush, _ := json.Marshal(textMessage{Text: ""})
	if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
		return nil, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// The server closes the stream after the final frame; audio
			// already collected counts as success.
			if len(pcm) > 0 {
				break
			}
			return nil, fmt.Errorf("elevenlabs: receive: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			frame, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				pcm = append(pcm, frame...)
			}
		}
		if resp.IsFinal {
			break
		}
	}

	if len(pcm) == 0 {
		return nil, port.ErrEmptyResult
	}
	return &port.Clip{Samples: audio.Int16ToFloat32(pcm), SampleRate: rate}, nil
}
