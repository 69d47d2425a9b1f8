// Package openai provides a transcription engine backed by the OpenAI
// audio transcriptions API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/sandakan/pkg/provider/transcribe"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Compile-time assertion that Engine satisfies transcribe.Engine.
var _ transcribe.Engine = (*Engine)(nil)

// Engine implements transcribe.Engine using the OpenAI API. The raw staged
// bytes are uploaded as-is; the API handles container and codec detection,
// so any format OpenAI accepts (mp3, mp4, wav, m4a, webm) works.
type Engine struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the engine.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Engine.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI transcription Engine.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai transcribe: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Engine{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Transcribe implements transcribe.Engine.
func (e *Engine) Transcribe(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty input", transcribe.ErrDecoding)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		Model: e.model,
		File:  oai.File(bytes.NewReader(data), "upload.bin", "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", transcribe.ErrAPIRequest, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// ModelID returns the configured transcription model.
func (e *Engine) ModelID() string { return e.model }
