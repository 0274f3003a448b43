// Package ollama provides a local [port.Describer] backed by a vision-capable
// model hosted on an Ollama server (https://ollama.com), such as llava or
// moondream. It uses Ollama's native /api/generate endpoint with a base64
// image attachment and non-streamed output.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sycalabs/ava/pkg/port"
)

// DefaultBaseURL is the base URL of a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

const defaultTimeout = 60 * time.Second

var _ port.Describer = (*Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s; vision
// models on CPU can take a while.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client implements [port.Describer] against an Ollama server. Safe for
// concurrent use.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Client for the given vision model (e.g. "llava"). An empty
// baseURL targets [DefaultBaseURL].
func New(baseURL, model string, opts ...Option) (*Client, error) {
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// generateRequest is the JSON body for POST /api/generate.
type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

// generateResponse is the non-streamed response from /api/generate.
type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Describe implements [port.Describer].
func (c *Client) Describe(ctx context.Context, image port.ImageRef, question string) (string, error) {
	data, err := imageData(image)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: question,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: server returned HTTP %d", resp.StatusCode)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama: %s", result.Error)
	}

	text := strings.TrimSpace(result.Response)
	if text == "" {
		return "", port.ErrEmptyResult
	}
	return text, nil
}

// imageData resolves an [port.ImageRef] to raw encoded bytes, reading from
// disk when only a path is given.
func imageData(image port.ImageRef) ([]byte, error) {
	if len(image.Data) > 0 {
		return image.Data, nil
	}
	if image.Path == "" {
		return nil, errors.New("ollama: image reference is empty")
	}
	data, err := os.ReadFile(image.Path)
	if err != nil {
		return nil, fmt.Errorf("ollama: read image %q: %w", image.Path, err)
	}
	return data, nil
}
