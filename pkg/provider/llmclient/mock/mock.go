// Package mock provides a test double for the llmclient.Client interface.
//
// Use Client to return canned answers or token sequences without a live
// model and to verify the prompts and contexts submitted for completion.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
)

// Call records a single invocation of Complete or CompleteStream.
type Call struct {
	// Prompt is the question passed in.
	Prompt string
	// Context is the assembled retrieval context passed in.
	Context string
}

// Client is a mock implementation of llmclient.Client.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CompleteResult is returned by Complete.
	CompleteResult string

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// StreamTokens are emitted in order by the channel from CompleteStream.
	StreamTokens []llmclient.Token

	// StreamErr, if non-nil, is returned as the initial error from
	// CompleteStream (the stream never starts).
	StreamErr error

	// --- Call records ---

	// CompleteCalls records every call to Complete in order.
	CompleteCalls []Call

	// StreamCalls records every call to CompleteStream in order.
	StreamCalls []Call
}

// Complete records the call and returns CompleteResult, CompleteErr.
func (c *Client) Complete(_ context.Context, prompt, contextText string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteCalls = append(c.CompleteCalls, Call{Prompt: prompt, Context: contextText})
	return c.CompleteResult, c.CompleteErr
}

// CompleteStream records the call and returns a channel emitting StreamTokens.
func (c *Client) CompleteStream(ctx context.Context, prompt, contextText string) (<-chan llmclient.Token, error) {
	c.mu.Lock()
	c.StreamCalls = append(c.StreamCalls, Call{Prompt: prompt, Context: contextText})
	tokens := make([]llmclient.Token, len(c.StreamTokens))
	copy(tokens, c.StreamTokens)
	err := c.StreamErr
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan llmclient.Token, len(tokens))
	go func() {
		defer close(ch)
		for _, tok := range tokens {
			select {
			case ch <- tok:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Reset clears all recorded calls. Thread-safe.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteCalls = nil
	c.StreamCalls = nil
}

// Ensure Client implements llmclient.Client at compile time.
var _ llmclient.Client = (*Client)(nil)
