// Package vectorstore defines the port for chunk-level vector persistence
// and similarity search. Implementations live in subpackages (qdrant,
// pgvector) plus a mock for tests.
package vectorstore

import (
	"context"
	"errors"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// ErrMismatchedLengths is returned by Upsert when the chunk and embedding
// slices differ in length.
var ErrMismatchedLengths = errors.New("vectorstore: chunks and embeddings length mismatch")

// Distance selects the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceEuclid Distance = "euclid"
	DistanceDot    Distance = "dot"
)

// CollectionConfig describes the collection an implementation should create.
type CollectionConfig struct {
	// VectorSize is the embedding dimensionality. Must match the embedding
	// provider's output dimension.
	VectorSize uint64

	// Distance is the similarity metric. Defaults to DistanceCosine when
	// left empty.
	Distance Distance
}

// SearchResult is one hit of a similarity search.
type SearchResult struct {
	Chunk domain.Chunk

	// Score is the similarity to the query embedding, higher is better.
	// For cosine distance this is 1 - distance.
	Score float32
}

// Store persists embedded chunks and serves nearest-neighbour queries.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateCollection ensures the backing collection exists with the given
	// configuration. It reports true when the collection was newly created
	// and false when it already existed.
	CreateCollection(ctx context.Context, cfg CollectionConfig) (bool, error)

	// CollectionExists reports whether the backing collection exists.
	CollectionExists(ctx context.Context) (bool, error)

	// CollectionVectorSize returns the embedding dimensionality of the
	// existing collection.
	CollectionVectorSize(ctx context.Context) (uint64, error)

	// DeleteCollection removes the backing collection and all points in it.
	DeleteCollection(ctx context.Context) error

	// Upsert writes chunks[i] with embeddings[i] for every i, replacing
	// points that already exist under the same chunk ID. The two slices
	// must have equal length.
	Upsert(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error

	// Search returns up to topK results ordered by descending score.
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)

	// Delete removes the points with the given chunk IDs. Missing IDs are
	// not an error.
	Delete(ctx context.Context, chunkIDs []domain.ChunkID) error
}
