// Package splitter provides the text chunking strategies used during
// ingestion: a fixed-size character window splitter and a token-budgeted
// sentence-aware splitter.
//
// Implementations must be safe for concurrent use.
package splitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// Splitter chunks a document's text into a bounded sequence of chunks.
// Chunk offsets are character offsets into the source text and increase
// monotonically across the document.
type Splitter interface {
	Split(ctx context.Context, text string, documentID domain.DocumentID) ([]domain.Chunk, error)
}

// Splitter error kinds.
var (
	// ErrTokenization indicates the tokenizer could not be loaded or applied.
	ErrTokenization = errors.New("splitter: tokenization failed")

	// ErrSplitting indicates the text could not be chunked.
	ErrSplitting = errors.New("splitter: splitting failed")
)

// Strategy selects a splitter implementation.
type Strategy string

const (
	StrategyFixed    Strategy = "fixed"
	StrategySemantic Strategy = "semantic"
)

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyFixed || s == StrategySemantic
}

// New constructs a splitter for the given strategy. For StrategyFixed the
// size and overlap are in characters; for StrategySemantic they are in
// cl100k_base tokens.
func New(strategy Strategy, size, overlap int) (Splitter, error) {
	switch strategy {
	case StrategyFixed:
		return NewFixed(size, overlap)
	case StrategySemantic:
		return NewSemantic(size, overlap, NewTiktokenCounter()), nil
	}
	return nil, fmt.Errorf("splitter: unknown strategy %q", strategy)
}
