// Package mock provides a test double for the extract.FileLoader interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/provider/extract"
)

// Call records a single invocation of ExtractText.
type Call struct {
	// Data is the byte payload passed in.
	Data []byte
	// Doc is the document passed in.
	Doc domain.Document
}

// Loader is a mock implementation of extract.FileLoader.
type Loader struct {
	mu sync.Mutex

	// Result is returned by ExtractText.
	Result string

	// Err, if non-nil, is returned as the error from ExtractText.
	Err error

	// Calls records every call to ExtractText in order.
	Calls []Call
}

// ExtractText records the call and returns Result, Err.
func (l *Loader) ExtractText(_ context.Context, data []byte, doc domain.Document) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	l.Calls = append(l.Calls, Call{Data: cp, Doc: doc})
	return l.Result, l.Err
}

// Reset clears all recorded calls. Thread-safe.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = nil
}

// Ensure Loader implements extract.FileLoader at compile time.
var _ extract.FileLoader = (*Loader)(nil)
