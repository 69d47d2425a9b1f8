// Package openaicompat provides an llmclient.Client speaking the
// OpenAI-compatible chat-completions wire protocol over plain HTTP.
// It covers the hosted OpenAI API, LM Studio's local server, and Azure
// OpenAI deployments; anything that serves POST /chat/completions with
// SSE streaming works.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
)

// ProviderName selects how the base URL and auth header are derived.
type ProviderName string

const (
	ProviderOpenAI   ProviderName = "openai"
	ProviderLMStudio ProviderName = "lmstudio"
	ProviderAzure    ProviderName = "azure"
)

// openAIBaseURL is the hosted OpenAI endpoint.
const openAIBaseURL = "https://api.openai.com/v1"

// Config carries everything needed to reach an OpenAI-compatible server.
type Config struct {
	// Provider selects base-URL resolution and the auth header scheme.
	Provider ProviderName

	// APIKey authenticates requests. Sent as "Authorization: Bearer" for
	// openai/lmstudio and as "api-key" for azure.
	APIKey string

	// Model is the chat model identifier (or the Azure deployment's model).
	Model string

	// BaseURL is required for lmstudio (e.g. "http://localhost:1234/v1")
	// and ignored for openai.
	BaseURL string

	// AzureEndpoint is the resource endpoint, required for azure
	// (e.g. "https://myresource.openai.azure.com").
	AzureEndpoint string

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature controls output randomness.
	Temperature float32

	// SystemPrompt is the template with the {context} placeholder.
	// Empty means llmclient.DefaultSystemPrompt.
	SystemPrompt string

	// Timeout bounds each non-streaming request and the wait for response
	// headers on streaming ones. An open stream body is never cut off by
	// it. Zero means no timeout.
	Timeout time.Duration
}

// Compile-time assertion that Client satisfies llmclient.Client.
var _ llmclient.Client = (*Client)(nil)

// Client implements llmclient.Client over the OpenAI-compatible protocol.
type Client struct {
	httpClient   *http.Client
	provider     ProviderName
	baseURL      string
	apiKey       string
	model        string
	maxTokens    int
	temperature  float32
	systemPrompt string
	timeout      time.Duration
}

// New constructs a Client, resolving the base URL from the provider name.
// Missing provider-specific fields are reported as errors.
func New(cfg Config) (*Client, error) {
	var baseURL string
	switch cfg.Provider {
	case ProviderOpenAI:
		baseURL = openAIBaseURL
	case ProviderLMStudio:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openaicompat: base_url is required for provider %q", cfg.Provider)
		}
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	case ProviderAzure:
		if cfg.AzureEndpoint == "" {
			return nil, fmt.Errorf("openaicompat: azure_endpoint is required for provider %q", cfg.Provider)
		}
		baseURL = fmt.Sprintf("%s/openai/deployments/%s",
			strings.TrimRight(cfg.AzureEndpoint, "/"), cfg.Model)
	default:
		return nil, fmt.Errorf("openaicompat: unknown provider %q; valid values: openai, lmstudio, azure", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openaicompat: model is required")
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = llmclient.DefaultSystemPrompt
	}

	// http.Client.Timeout would sever a live SSE body, so the timeout is
	// enforced on the header wait here and per request in Complete.
	httpClient := &http.Client{}
	if cfg.Timeout > 0 {
		httpClient.Transport = &http.Transport{ResponseHeaderTimeout: cfg.Timeout}
	}

	return &Client{
		httpClient:   httpClient,
		provider:     cfg.Provider,
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: prompt,
		timeout:      cfg.Timeout,
	}, nil
}

// wire types for the chat-completions protocol

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// buildMessages renders the system prompt template and appends the user turn.
func (c *Client) buildMessages(prompt, contextText string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: llmclient.RenderSystemPrompt(c.systemPrompt, contextText)},
		{Role: "user", Content: prompt},
	}
}

// send posts the request body and maps status codes onto the error taxonomy.
// The caller owns the response body.
func (c *Client) send(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", llmclient.ErrAPIRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llmclient.ErrAPIRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.provider == ProviderAzure {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llmclient.ErrAPIRequest, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, llmclient.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d: %s", llmclient.ErrAPIRequest, resp.StatusCode, respBody)
	}
	return resp, nil
}

// Complete implements llmclient.Client.
func (c *Client) Complete(ctx context.Context, prompt, contextText string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.send(ctx, chatRequest{
		Model:       c.model,
		Messages:    c.buildMessages(prompt, contextText),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode body: %v", llmclient.ErrInvalidResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", llmclient.ErrInvalidResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}

// CompleteStream implements llmclient.Client.
func (c *Client) CompleteStream(ctx context.Context, prompt, contextText string) (<-chan llmclient.Token, error) {
	resp, err := c.send(ctx, chatRequest{
		Model:       c.model,
		Messages:    c.buildMessages(prompt, contextText),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan llmclient.Token, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			if data == "[DONE]" {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Partial or non-JSON frames are skipped, matching the
				// tolerant parsing of common SSE clients.
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case ch <- llmclient.Token{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- llmclient.Token{Err: fmt.Errorf("%w: read stream: %v", llmclient.ErrAPIRequest, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
