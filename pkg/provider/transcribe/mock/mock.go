// Package mock provides a test double for the transcribe.Engine interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sandakan/pkg/provider/transcribe"
)

// Engine is a mock implementation of transcribe.Engine.
type Engine struct {
	mu sync.Mutex

	// Result is returned by Transcribe.
	Result string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records the byte payload of every Transcribe call in order.
	Calls [][]byte
}

// Transcribe records the call and returns Result, Err.
func (e *Engine) Transcribe(_ context.Context, data []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	e.Calls = append(e.Calls, cp)
	return e.Result, e.Err
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = nil
}

// Ensure Engine implements transcribe.Engine at compile time.
var _ transcribe.Engine = (*Engine)(nil)
