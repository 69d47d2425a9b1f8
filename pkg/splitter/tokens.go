package splitter

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts the tokens a text span occupies in the model's
// vocabulary. Used for the semantic splitter's chunk budget and for the
// retrieval context budget.
type TokenCounter interface {
	Count(text string) (int, error)
}

// encodingName is the byte-pair encoding shared by the embedding and chat
// models this pipeline targets.
const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// encoding loads the cl100k_base encoding once per process and shares it.
func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(encodingName)
	})
	if encErr != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrTokenization, encodingName, encErr)
	}
	return enc, nil
}

// Ensure TiktokenCounter implements TokenCounter.
var _ TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter counts tokens with the cl100k_base byte-pair encoding.
// The zero value is ready to use; the encoding is loaded lazily.
type TiktokenCounter struct{}

// NewTiktokenCounter returns a counter backed by the shared cl100k_base encoding.
func NewTiktokenCounter() *TiktokenCounter { return &TiktokenCounter{} }

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(text string) (int, error) {
	e, err := encoding()
	if err != nil {
		return 0, err
	}
	return len(e.Encode(text, nil, nil)), nil
}
