package splitter

import (
	"context"
	"fmt"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// Ensure Fixed implements the Splitter interface.
var _ Splitter = (*Fixed)(nil)

// Fixed emits character windows of chunkSize at stride chunkSize-chunkOverlap.
// The last window is truncated. When chunkSize <= chunkOverlap the stride
// degrades to chunkSize so the walk always terminates.
type Fixed struct {
	chunkSize    int
	chunkOverlap int
}

// NewFixed constructs a fixed-size character splitter.
func NewFixed(chunkSize, chunkOverlap int) (*Fixed, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrSplitting, chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrSplitting, chunkOverlap)
	}
	return &Fixed{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Split implements Splitter. Windows are measured in code points, not bytes.
func (f *Fixed) Split(ctx context.Context, text string, documentID domain.DocumentID) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chars := []rune(text)
	if len(chars) == 0 {
		return nil, nil
	}

	stride := f.chunkSize
	if f.chunkSize > f.chunkOverlap {
		stride = f.chunkSize - f.chunkOverlap
	}

	var chunks []domain.Chunk
	for offset := 0; offset < len(chars); offset += stride {
		end := min(offset+f.chunkSize, len(chars))
		chunks = append(chunks, domain.NewChunk(string(chars[offset:end]), documentID, nil, offset))
	}
	return chunks, nil
}
