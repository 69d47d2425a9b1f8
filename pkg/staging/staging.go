// Package staging defines the port for the temporary object store that
// uploads pass through between HTTP ingestion and background processing.
// Implementations live in subpackages (local, s3) plus a mock for tests.
package staging

import (
	"context"
	"errors"
	"io"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// ErrNotFound is returned by Fetch, Delete and Head when no object exists
// at the given path.
var ErrNotFound = errors.New("staging: object not found")

// Store stages raw uploads under their domain.StoragePath until the
// ingestion worker has consumed them. Implementations must be safe for
// concurrent use.
type Store interface {
	// Store streams r into the object at path and returns the number of
	// bytes written. contentLength is a size hint; pass -1 when unknown.
	// An existing object at the same path is overwritten.
	Store(ctx context.Context, path domain.StoragePath, r io.Reader, contentLength int64) (int64, error)

	// Fetch reads the whole object at path into memory.
	Fetch(ctx context.Context, path domain.StoragePath) ([]byte, error)

	// Delete removes the object at path.
	Delete(ctx context.Context, path domain.StoragePath) error

	// Head returns the size in bytes of the object at path without
	// fetching its content.
	Head(ctx context.Context, path domain.StoragePath) (int64, error)
}
