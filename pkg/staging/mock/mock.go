// Package mock provides an in-memory test double for the staging.Store
// interface.
package mock

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/staging"
)

// Store is an in-memory implementation of staging.Store. The zero value is
// ready to use.
type Store struct {
	mu      sync.Mutex
	objects map[string][]byte

	// StoreErr, FetchErr, DeleteErr and HeadErr, if non-nil, are returned
	// by the respective methods before touching the in-memory state.
	StoreErr  error
	FetchErr  error
	DeleteErr error
	HeadErr   error

	// DeleteCalls records every path passed to Delete, including failed
	// attempts.
	DeleteCalls []domain.StoragePath
}

// Store implements staging.Store.
func (s *Store) Store(_ context.Context, path domain.StoragePath, r io.Reader, _ int64) (int64, error) {
	if s.StoreErr != nil {
		return 0, s.StoreErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[path.String()] = data
	return int64(len(data)), nil
}

// Fetch implements staging.Store.
func (s *Store) Fetch(_ context.Context, path domain.StoragePath) ([]byte, error) {
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", staging.ErrNotFound, path)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete implements staging.Store.
func (s *Store) Delete(_ context.Context, path domain.StoragePath) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls = append(s.DeleteCalls, path)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.objects[path.String()]; !ok {
		return fmt.Errorf("%w: %s", staging.ErrNotFound, path)
	}
	delete(s.objects, path.String())
	return nil
}

// Head implements staging.Store.
func (s *Store) Head(_ context.Context, path domain.StoragePath) (int64, error) {
	if s.HeadErr != nil {
		return 0, s.HeadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path.String()]
	if !ok {
		return 0, fmt.Errorf("%w: %s", staging.ErrNotFound, path)
	}
	return int64(len(data)), nil
}

// Len reports how many objects the store currently holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Reset clears all objects and recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = nil
	s.DeleteCalls = nil
}

// Ensure Store implements staging.Store at compile time.
var _ staging.Store = (*Store)(nil)
