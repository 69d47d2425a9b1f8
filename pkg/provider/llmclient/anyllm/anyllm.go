// Package anyllm provides an llmclient.Client backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. Use it for chat providers the plain OpenAI-compatible client cannot
// reach.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
)

// Compile-time assertion that Client satisfies llmclient.Client.
var _ llmclient.Client = (*Client)(nil)

// Client implements llmclient.Client by wrapping an any-llm-go provider.
type Client struct {
	backend      anyllmlib.Provider
	model        string
	maxTokens    int
	temperature  float64
	systemPrompt string
}

// Option is a functional option for Client.
type Option func(*Client)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithSystemPrompt sets the system prompt template ({context} placeholder).
func WithSystemPrompt(template string) Option {
	return func(c *Client) { c.systemPrompt = template }
}

// New creates a Client backed by the given provider name, one of: "openai",
// "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp".
// backendOpts are any-llm-go options such as anyllmlib.WithAPIKey and
// anyllmlib.WithBaseURL; without an API key option the provider falls back to
// its environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(providerName, model string, opts []Option, backendOpts ...anyllmlib.Option) (*Client, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	c := &Client{
		backend:      backend,
		model:        model,
		systemPrompt: llmclient.DefaultSystemPrompt,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp", providerName)
	}
}

// buildParams assembles the chat request with the rendered system prompt.
func (c *Client) buildParams(prompt, contextText string) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model: c.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: llmclient.RenderSystemPrompt(c.systemPrompt, contextText)},
			{Role: anyllmlib.RoleUser, Content: prompt},
		},
	}
	if c.temperature != 0 {
		t := c.temperature
		params.Temperature = &t
	}
	if c.maxTokens > 0 {
		mt := c.maxTokens
		params.MaxTokens = &mt
	}
	return params
}

// Complete implements llmclient.Client.
func (c *Client) Complete(ctx context.Context, prompt, contextText string) (string, error) {
	resp, err := c.backend.Completion(ctx, c.buildParams(prompt, contextText))
	if err != nil {
		return "", fmt.Errorf("%w: %v", llmclient.ErrAPIRequest, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", llmclient.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// CompleteStream implements llmclient.Client.
func (c *Client) CompleteStream(ctx context.Context, prompt, contextText string) (<-chan llmclient.Token, error) {
	backendChunks, backendErrs := c.backend.CompletionStream(ctx, c.buildParams(prompt, contextText))

	ch := make(chan llmclient.Token, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case ch <- llmclient.Token{Text: text}:
			case <-ctx.Done():
				return
			}
		}

		// Backend errors surface after the chunk channel is drained.
		if err := <-backendErrs; err != nil {
			select {
			case ch <- llmclient.Token{Err: fmt.Errorf("%w: %v", llmclient.ErrAPIRequest, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
