// Package plaintext provides the FileLoader for text/plain uploads.
package plaintext

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/provider/extract"
)

// Ensure Loader implements the extract.FileLoader interface.
var _ extract.FileLoader = (*Loader)(nil)

// Loader extracts sanitized text from UTF-8 plain-text bytes.
type Loader struct{}

// New returns a ready-to-use plain-text Loader.
func New() *Loader { return &Loader{} }

// ExtractText implements extract.FileLoader.
func (l *Loader) ExtractText(ctx context.Context, data []byte, doc domain.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.ContentType != domain.ContentTypeText {
		return "", fmt.Errorf("%w: %s", extract.ErrUnsupportedContentType, doc.ContentType.MIME())
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: input is not valid UTF-8", extract.ErrExtractionFailed)
	}

	text := extract.Sanitize(string(data))
	if text == "" {
		return "", fmt.Errorf("%w: %s", extract.ErrNoTextFound, doc.Filename)
	}
	return text, nil
}
