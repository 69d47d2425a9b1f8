// Package llmclient defines the Client interface for chat-completion
// backends used by the retrieval service.
//
// A client receives the user's question and the assembled retrieval context
// and produces an answer, either whole or as a lazy token stream. The system
// prompt template carries a {context} placeholder that is substituted with
// the context verbatim before the request is sent.
//
// Implementations must be safe for concurrent use. Channels returned by
// CompleteStream are closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llmclient

import (
	"context"
	"errors"
	"strings"
)

// Client error kinds.
var (
	// ErrAPIRequest indicates the upstream request failed (transport error
	// or non-2xx status).
	ErrAPIRequest = errors.New("llmclient: api request failed")

	// ErrRateLimited indicates the upstream returned HTTP 429.
	ErrRateLimited = errors.New("llmclient: rate limited")

	// ErrInvalidResponse indicates the upstream body could not be parsed or
	// carried no choices.
	ErrInvalidResponse = errors.New("llmclient: invalid response")
)

// DefaultSystemPrompt is used when no template is configured.
const DefaultSystemPrompt = "You are a helpful assistant. Answer the question using only the provided context.\n\nContext:\n{context}"

// Token is one unit of a streamed completion, in the provider's own
// granularity. Concatenating the Text of all tokens yields the full answer.
// A non-nil Err terminates the stream; no further tokens follow it.
type Token struct {
	Text string
	Err  error
}

// Client is the abstraction over any chat-completion backend.
type Client interface {
	// Complete sends the question with the assembled context and waits for
	// the full answer.
	Complete(ctx context.Context, prompt, contextText string) (string, error)

	// CompleteStream sends the question and returns a read-only channel
	// emitting tokens as they arrive. The channel is closed when generation
	// finishes, an error token is emitted, or ctx is cancelled. Callers must
	// drain the channel to avoid goroutine leaks.
	//
	// The returned channel is never nil when error is nil. The initial error
	// return is non-nil only for failures that prevent the stream from
	// starting.
	CompleteStream(ctx context.Context, prompt, contextText string) (<-chan Token, error)
}

// RenderSystemPrompt substitutes the {context} placeholder in template with
// contextText verbatim.
func RenderSystemPrompt(template, contextText string) string {
	return strings.ReplaceAll(template, "{context}", contextText)
}
