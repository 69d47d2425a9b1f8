// Package qdrant implements the vectorstore.Store port on top of a Qdrant
// instance reached over gRPC.
package qdrant

import (
	"context"
	"fmt"

	qd "github.com/qdrant/go-client/qdrant"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
)

// Ensure Store implements the vectorstore.Store interface.
var _ vectorstore.Store = (*Store)(nil)

// Store is a Qdrant-backed vector store scoped to one collection.
type Store struct {
	client     *qd.Client
	collection string
}

// Option customizes the Qdrant connection.
type Option func(*qd.Config)

// WithAPIKey authenticates every request with the given key.
func WithAPIKey(key string) Option {
	return func(c *qd.Config) { c.APIKey = key }
}

// WithTLS enables TLS on the gRPC channel.
func WithTLS() Option {
	return func(c *qd.Config) { c.UseTLS = true }
}

// New connects to Qdrant at host:port and scopes all operations to the named
// collection. The collection does not have to exist yet.
func New(host string, port int, collection string, opts ...Option) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant store: collection must not be empty")
	}
	cfg := &qd.Config{Host: host, Port: port}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := qd.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant store: connect: %w", err)
	}
	return &Store{client: client, collection: collection}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// CreateCollection implements vectorstore.Store.
func (s *Store) CreateCollection(ctx context.Context, cfg vectorstore.CollectionConfig) (bool, error) {
	exists, err := s.CollectionExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	err = s.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     cfg.VectorSize,
			Distance: toQdrantDistance(cfg.Distance),
		}),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant store: create collection %q: %w", s.collection, err)
	}
	return true, nil
}

// CollectionExists implements vectorstore.Store.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("qdrant store: collection exists %q: %w", s.collection, err)
	}
	return exists, nil
}

// CollectionVectorSize implements vectorstore.Store.
func (s *Store) CollectionVectorSize(ctx context.Context) (uint64, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant store: collection info %q: %w", s.collection, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("qdrant store: collection %q has no vector params", s.collection)
	}
	return params.GetSize(), nil
}

// DeleteCollection implements vectorstore.Store.
func (s *Store) DeleteCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("qdrant store: delete collection %q: %w", s.collection, err)
	}
	return nil
}

// Upsert implements vectorstore.Store. Points are written with Wait=true so
// they are searchable as soon as the call returns.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings",
			vectorstore.ErrMismatchedLengths, len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qd.PointStruct, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"document_id": chunk.DocumentID.String(),
			"text":        chunk.Text,
			"offset":      int64(chunk.Offset),
		}
		if chunk.Page != nil {
			payload["page"] = int64(*chunk.Page)
		}
		points[i] = &qd.PointStruct{
			Id:      qd.NewIDUUID(chunk.ID.String()),
			Vectors: qd.NewVectors(embeddings[i]...),
			Payload: qd.NewValueMap(payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qd.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant store: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]vectorstore.SearchResult, error) {
	scored, err := s.client.Query(ctx, &qd.QueryPoints{
		CollectionName: s.collection,
		Query:          qd.NewQuery(embedding...),
		Limit:          qd.PtrOf(uint64(topK)),
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant store: search: %w", err)
	}

	results := make([]vectorstore.SearchResult, 0, len(scored))
	for _, point := range scored {
		chunk, err := chunkFromPoint(point)
		if err != nil {
			return nil, fmt.Errorf("qdrant store: search: %w", err)
		}
		results = append(results, vectorstore.SearchResult{Chunk: chunk, Score: point.GetScore()})
	}
	return results, nil
}

// Delete implements vectorstore.Store.
func (s *Store) Delete(ctx context.Context, chunkIDs []domain.ChunkID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qd.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = qd.NewIDUUID(id.String())
	}
	_, err := s.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: s.collection,
		Points:         qd.NewPointsSelector(ids...),
		Wait:           qd.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant store: delete %d points: %w", len(ids), err)
	}
	return nil
}

// chunkFromPoint rebuilds a domain.Chunk from a scored point's ID and payload.
func chunkFromPoint(point *qd.ScoredPoint) (domain.Chunk, error) {
	chunkID, err := domain.ChunkIDFromString(point.GetId().GetUuid())
	if err != nil {
		return domain.Chunk{}, err
	}

	payload := point.GetPayload()
	docID, err := domain.DocumentIDFromString(payload["document_id"].GetStringValue())
	if err != nil {
		return domain.Chunk{}, err
	}

	chunk := domain.Chunk{
		ID:         chunkID,
		DocumentID: docID,
		Text:       payload["text"].GetStringValue(),
		Offset:     int(payload["offset"].GetIntegerValue()),
	}
	if pageVal, ok := payload["page"]; ok {
		page := int(pageVal.GetIntegerValue())
		chunk.Page = &page
	}
	return chunk, nil
}

// toQdrantDistance maps the port's distance metric onto the wire enum.
func toQdrantDistance(d vectorstore.Distance) qd.Distance {
	switch d {
	case vectorstore.DistanceEuclid:
		return qd.Distance_Euclid
	case vectorstore.DistanceDot:
		return qd.Distance_Dot
	default:
		return qd.Distance_Cosine
	}
}
