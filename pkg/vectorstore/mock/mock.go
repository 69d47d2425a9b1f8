// Package mock provides a test double for the vectorstore.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
)

// UpsertCall records a single invocation of Upsert.
type UpsertCall struct {
	Chunks     []domain.Chunk
	Embeddings [][]float32
}

// SearchCall records a single invocation of Search.
type SearchCall struct {
	Embedding []float32
	TopK      int
}

// Store is a mock implementation of vectorstore.Store.
type Store struct {
	mu sync.Mutex

	// Exists is returned by CollectionExists.
	Exists bool

	// VectorSize is returned by CollectionVectorSize.
	VectorSize uint64

	// SearchResults is returned by Search.
	SearchResults []vectorstore.SearchResult

	// CreateErr, ExistsErr, SizeErr, DeleteCollectionErr, UpsertErr,
	// SearchErr and DeleteErr, if non-nil, are returned by the respective
	// methods.
	CreateErr           error
	ExistsErr           error
	SizeErr             error
	DeleteCollectionErr error
	UpsertErr           error
	SearchErr           error
	DeleteErr           error

	// CreateCalls counts CreateCollection invocations and records the last
	// configuration it was given.
	CreateCalls  int
	LastCreate   vectorstore.CollectionConfig
	UpsertCalls  []UpsertCall
	SearchCalls  []SearchCall
	DeleteCalls  [][]domain.ChunkID
	DeletedColls int
}

// CreateCollection records the call. It reports true unless Exists is set.
func (s *Store) CreateCollection(_ context.Context, cfg vectorstore.CollectionConfig) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++
	s.LastCreate = cfg
	if s.CreateErr != nil {
		return false, s.CreateErr
	}
	if s.Exists {
		return false, nil
	}
	s.Exists = true
	s.VectorSize = cfg.VectorSize
	return true, nil
}

// CollectionExists returns Exists, ExistsErr.
func (s *Store) CollectionExists(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Exists, s.ExistsErr
}

// CollectionVectorSize returns VectorSize, SizeErr.
func (s *Store) CollectionVectorSize(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.VectorSize, s.SizeErr
}

// DeleteCollection records the call and returns DeleteCollectionErr.
func (s *Store) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeletedColls++
	if s.DeleteCollectionErr != nil {
		return s.DeleteCollectionErr
	}
	s.Exists = false
	return nil
}

// Upsert records the call and returns UpsertErr. It enforces the port's
// length contract like a real implementation would.
func (s *Store) Upsert(_ context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return vectorstore.ErrMismatchedLengths
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls = append(s.UpsertCalls, UpsertCall{Chunks: chunks, Embeddings: embeddings})
	return s.UpsertErr
}

// Search records the call and returns SearchResults, SearchErr.
func (s *Store) Search(_ context.Context, embedding []float32, topK int) ([]vectorstore.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls = append(s.SearchCalls, SearchCall{Embedding: embedding, TopK: topK})
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	results := s.SearchResults
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete records the call and returns DeleteErr.
func (s *Store) Delete(_ context.Context, chunkIDs []domain.ChunkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls = append(s.DeleteCalls, chunkIDs)
	return s.DeleteErr
}

// Reset clears all recorded calls and configured state. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Exists = false
	s.VectorSize = 0
	s.SearchResults = nil
	s.CreateCalls = 0
	s.LastCreate = vectorstore.CollectionConfig{}
	s.UpsertCalls = nil
	s.SearchCalls = nil
	s.DeleteCalls = nil
	s.DeletedColls = 0
}

// Ensure Store implements vectorstore.Store at compile time.
var _ vectorstore.Store = (*Store)(nil)
