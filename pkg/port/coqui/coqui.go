// Package coqui provides a local [port.Synthesizer] backed by a Coqui TTS
// server (ghcr.io/coqui-ai/tts-cpu). The server operates in batch mode: one
// GET /api/tts call per text segment, returning a WAV payload at the model's
// native sample rate. Callers splitting replies into sentences keep perceived
// latency low despite the batch round trip.
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sycalabs/ava/pkg/audio"
	"github.com/sycalabs/ava/pkg/port"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	ttsEndpoint = "/api/tts"
)

var _ port.Synthesizer = (*Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithLanguage sets the language_id query parameter. Multi-lingual models
// require it; single-language models ignore it.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithSpeaker sets the speaker_id query parameter for multi-speaker models.
func WithSpeaker(speaker string) Option {
	return func(c *Client) { c.speaker = speaker }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client implements [port.Synthesizer] against a Coqui TTS server. Safe for
// concurrent use; parallel Synthesize calls map to parallel HTTP requests.
type Client struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
}

// New creates a Client targeting the Coqui server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Synthesize implements [port.Synthesizer]. The returned clip carries the
// server's native sample rate; playback resamples when needed.
func (c *Client) Synthesize(ctx context.Context, text string) (*port.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, port.ErrEmptyResult
	}

	q := url.Values{}
	q.Set("text", text)
	if c.speaker != "" {
		q.Set("speaker_id", c.speaker)
	}
	if c.language != "" {
		q.Set("language_id", c.language)
	}

	endpoint := c.serverURL + ttsEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read response body: %w", err)
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("coqui: decode response: %w", err)
	}
	if len(samples) == 0 {
		return nil, port.ErrEmptyResult
	}
	return &port.Clip{Samples: samples, SampleRate: rate}, nil
}
