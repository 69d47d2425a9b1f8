package extract

import (
	"context"
	"fmt"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// Ensure Composite implements the FileLoader interface.
var _ FileLoader = (*Composite)(nil)

// Composite routes extraction to a per-content-type loader.
type Composite struct {
	loaders map[domain.ContentType]FileLoader
}

// NewComposite builds a Composite from a content-type → loader map.
func NewComposite(loaders map[domain.ContentType]FileLoader) *Composite {
	m := make(map[domain.ContentType]FileLoader, len(loaders))
	for ct, l := range loaders {
		m[ct] = l
	}
	return &Composite{loaders: m}
}

// ExtractText implements FileLoader.
func (c *Composite) ExtractText(ctx context.Context, data []byte, doc domain.Document) (string, error) {
	loader, ok := c.loaders[doc.ContentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, doc.ContentType.MIME())
	}
	return loader.ExtractText(ctx, data, doc)
}
