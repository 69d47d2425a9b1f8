// Package local implements the staging.Store port on a directory of the
// local filesystem, laid out as <base>/<document_id>/<filename>.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/staging"
)

// Ensure Store implements the staging.Store interface.
var _ staging.Store = (*Store)(nil)

// Store is a filesystem-backed staging store rooted at one directory.
type Store struct {
	base string
}

// New creates base (and parents) if missing and roots the store there.
func New(base string) (*Store, error) {
	if base == "" {
		return nil, fmt.Errorf("local staging: base path must not be empty")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("local staging: create base dir: %w", err)
	}
	return &Store{base: base}, nil
}

// objectPath resolves path below the base directory, refusing filenames
// that would escape it.
func (s *Store) objectPath(path domain.StoragePath) (string, error) {
	name := path.Filename()
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("local staging: invalid filename %q", name)
	}
	return filepath.Join(s.base, path.DocumentID().String(), name), nil
}

// Store implements staging.Store. The object is written to a temporary file
// first and renamed into place so readers never observe partial content.
func (s *Store) Store(ctx context.Context, path domain.StoragePath, r io.Reader, _ int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	target, err := s.objectPath(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("local staging: create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("local staging: create temp file: %w", err)
	}
	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("local staging: write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("local staging: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("local staging: finalize object: %w", err)
	}
	return written, nil
}

// Fetch implements staging.Store.
func (s *Store) Fetch(ctx context.Context, path domain.StoragePath) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.objectPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", staging.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("local staging: read object: %w", err)
	}
	return data, nil
}

// Delete implements staging.Store. The now-empty document directory is
// removed as well, best effort.
func (s *Store) Delete(ctx context.Context, path domain.StoragePath) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.objectPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", staging.ErrNotFound, path)
	} else if err != nil {
		return fmt.Errorf("local staging: delete object: %w", err)
	}
	os.Remove(filepath.Dir(target))
	return nil
}

// Head implements staging.Store.
func (s *Store) Head(ctx context.Context, path domain.StoragePath) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	target, err := s.objectPath(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", staging.ErrNotFound, path)
	}
	if err != nil {
		return 0, fmt.Errorf("local staging: stat object: %w", err)
	}
	return info.Size(), nil
}
