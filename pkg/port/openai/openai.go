// Package openai provides the remote speech and vision backends over the
// OpenAI SDK: a [port.Transcriber] using the audio transcriptions API and a
// [port.Describer] using multimodal chat completions. Pointing the base URL
// at an OpenAI-compatible gateway such as OpenRouter works for the chat side;
// transcription requires an endpoint that implements /audio/transcriptions.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sycalabs/ava/pkg/audio"
	"github.com/sycalabs/ava/pkg/port"
)

const (
	defaultSTTModel    = "whisper-1"
	defaultVisionModel = "gpt-4o-mini"
	defaultTimeout     = 30 * time.Second

	// visionMaxTokens caps description length; scene summaries are injected
	// into chat prompts and must stay short.
	visionMaxTokens = 300
)

var (
	_ port.Transcriber = (*Client)(nil)
	_ port.Describer   = (*Client)(nil)
)

// config holds optional settings collected from functional options.
type config struct {
	baseURL     string
	sttModel    string
	visionModel string
	timeout     time.Duration
}

// Option configures a [Client].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithSTTModel sets the transcription model. Defaults to "whisper-1".
func WithSTTModel(model string) Option {
	return func(c *config) { c.sttModel = model }
}

// WithVisionModel sets the multimodal chat model used for image description.
// Defaults to "gpt-4o-mini".
func WithVisionModel(model string) Option {
	return func(c *config) { c.visionModel = model }
}

// WithTimeout sets a per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Client implements [port.Transcriber] and [port.Describer] against the
// OpenAI API. Safe for concurrent use.
type Client struct {
	client      oai.Client
	sttModel    string
	visionModel string
}

// New creates a Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}

	cfg := &config{
		sttModel:    defaultSTTModel,
		visionModel: defaultVisionModel,
		timeout:     defaultTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Client{
		client:      oai.NewClient(reqOpts...),
		sttModel:    cfg.sttModel,
		visionModel: cfg.visionModel,
	}, nil
}

// Transcribe implements [port.Transcriber]. The utterance is wrapped in a
// WAV container and uploaded to the audio transcriptions endpoint.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", port.ErrEmptyResult
	}
	wav := audio.EncodeWAV(samples, sampleRate)

	resp, err := c.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(c.sttModel),
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", port.ErrEmptyResult
	}
	return text, nil
}

// Describe implements [port.Describer]. The image travels inline as a
// base64 data URL in a multimodal user message.
func (c *Client) Describe(ctx context.Context, image port.ImageRef, question string) (string, error) {
	dataURL, err := imageDataURL(image)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.visionModel),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(question),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		MaxCompletionTokens: param.NewOpt(int64(visionMaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai: vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", port.ErrEmptyResult
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", port.ErrEmptyResult
	}
	return text, nil
}

// imageDataURL resolves an [port.ImageRef] to an inline data URL.
func imageDataURL(image port.ImageRef) (string, error) {
	data := image.Data
	if len(data) == 0 {
		if image.Path == "" {
			return "", errors.New("openai: image reference is empty")
		}
		var err error
		data, err = os.ReadFile(image.Path)
		if err != nil {
			return "", fmt.Errorf("openai: read image %q: %w", image.Path, err)
		}
	}
	mime := image.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
