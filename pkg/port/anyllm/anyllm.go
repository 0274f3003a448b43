// Package anyllm provides a [port.Completer] backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider chat interface.
// The local side talks to an Ollama server; the cloud side talks to any
// OpenAI-compatible API such as OpenRouter.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/sycalabs/ava/pkg/port"
)

var _ port.Completer = (*Client)(nil)

// Client implements [port.Completer] by wrapping an any-llm-go provider.
// Safe for concurrent use.
type Client struct {
	backend anyllmlib.Provider
	model   string
}

// NewOllama creates a Client backed by a local Ollama server. An empty
// baseURL targets http://localhost:11434.
func NewOllama(baseURL, model string) (*Client, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	var opts []anyllmlib.Option
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	backend, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create ollama backend: %w", err)
	}
	return &Client{backend: backend, model: model}, nil
}

// NewOpenAI creates a Client backed by an OpenAI-compatible API. baseURL
// selects the endpoint (e.g. "https://openrouter.ai/api/v1"); empty means
// the OpenAI default.
func NewOpenAI(apiKey, baseURL, model string) (*Client, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	opts := []anyllmlib.Option{anyllmlib.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	backend, err := anyllmoai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create openai backend: %w", err)
	}
	return &Client{backend: backend, model: model}, nil
}

// Complete implements [port.Completer].
func (c *Client) Complete(ctx context.Context, messages []port.Message, systemPrompt string) (string, error) {
	resp, err := c.backend.Completion(ctx, c.buildParams(messages, systemPrompt))
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", port.ErrEmptyResult
	}
	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return "", port.ErrEmptyResult
	}
	return text, nil
}

// CompleteStream implements [port.Completer].
func (c *Client) CompleteStream(ctx context.Context, messages []port.Message, systemPrompt string) (*port.Stream, error) {
	chunks, errs := c.backend.CompletionStream(ctx, c.buildParams(messages, systemPrompt))

	out := make(chan string, 32)
	stream := port.NewStream(out)
	go func() {
		defer close(out)
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case out <- text:
			case <-ctx.Done():
				stream.SetErr(ctx.Err())
				return
			}
		}
		// The error channel resolves only after the chunk channel drains.
		if err := <-errs; err != nil {
			stream.SetErr(fmt.Errorf("anyllm: stream: %w", err))
		}
	}()
	return stream, nil
}

// buildParams assembles completion parameters with the system prompt, when
// present, as the leading message.
func (c *Client) buildParams(messages []port.Message, systemPrompt string) anyllmlib.CompletionParams {
	converted := make([]anyllmlib.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		converted = append(converted, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range messages {
		converted = append(converted, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: converted,
	}
}
