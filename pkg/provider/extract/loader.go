// Package extract defines the FileLoader interface for turning staged
// document bytes into sanitized text, plus the composite loader that routes
// by content type.
//
// Implementations must be safe for concurrent use and must enforce their own
// per-content-type precondition.
package extract

import (
	"context"
	"errors"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// FileLoader error kinds.
var (
	// ErrUnsupportedContentType indicates the loader cannot handle the
	// document's content type.
	ErrUnsupportedContentType = errors.New("extract: unsupported content type")

	// ErrExtractionFailed indicates extraction ran but did not succeed.
	ErrExtractionFailed = errors.New("extract: extraction failed")

	// ErrNoTextFound indicates extraction succeeded but the sanitized
	// result is empty.
	ErrNoTextFound = errors.New("extract: no text found")
)

// FileLoader is the abstraction over any text-extraction backend.
type FileLoader interface {
	// ExtractText converts raw document bytes to cleanly sanitized text.
	// Empty text after sanitization is ErrNoTextFound.
	ExtractText(ctx context.Context, data []byte, doc domain.Document) (string, error)
}
