// Package pgvector implements the vectorstore.Store port on a PostgreSQL
// table with a pgvector embedding column and an HNSW cosine index.
package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
)

// DefaultTable is the chunk table used when none is configured.
const DefaultTable = "chunks"

// Ensure Store implements the vectorstore.Store interface.
var _ vectorstore.Store = (*Store)(nil)

// Store is a pgvector-backed vector store scoped to one table.
// All methods are safe for concurrent use.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New wraps an existing pool. table falls back to DefaultTable when empty.
// The pool must have pgvector types registered on its connections; Connect
// does that for you.
func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{pool: pool, table: table}
}

// Connect opens a pool against dsn with pgvector types registered on every
// connection and verifies connectivity with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector store: ping: %w", err)
	}
	return pool, nil
}

// ident returns the sanitized table identifier for embedding into SQL.
func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// CreateCollection implements vectorstore.Store. Only cosine distance is
// supported by the index this store creates.
func (s *Store) CreateCollection(ctx context.Context, cfg vectorstore.CollectionConfig) (bool, error) {
	if cfg.Distance != "" && cfg.Distance != vectorstore.DistanceCosine {
		return false, fmt.Errorf("pgvector store: unsupported distance %q", cfg.Distance)
	}
	exists, err := s.CollectionExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	ddl := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           UUID PRIMARY KEY,
			document_id  UUID NOT NULL,
			content      TEXT NOT NULL,
			page         INTEGER,
			chunk_offset INTEGER NOT NULL DEFAULT 0,
			embedding    vector(%d) NOT NULL
		)`, s.ident(), cfg.VectorSize),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s
			USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{s.table + "_embedding_idx"}.Sanitize(), s.ident()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`,
			pgx.Identifier{s.table + "_document_id_idx"}.Sanitize(), s.ident()),
	}
	for _, q := range ddl {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return false, fmt.Errorf("pgvector store: create collection: %w", err)
		}
	}
	return true, nil
}

// CollectionExists implements vectorstore.Store.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	var regclass *string
	err := s.pool.QueryRow(ctx, `SELECT to_regclass($1)::text`, s.table).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("pgvector store: collection exists: %w", err)
	}
	return regclass != nil, nil
}

// CollectionVectorSize implements vectorstore.Store. For pgvector columns
// atttypmod carries the declared dimension directly.
func (s *Store) CollectionVectorSize(ctx context.Context) (uint64, error) {
	var dim int32
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod
		FROM   pg_attribute
		WHERE  attrelid = to_regclass($1)
		  AND  attname = 'embedding'`, s.table).Scan(&dim)
	if err != nil {
		return 0, fmt.Errorf("pgvector store: collection vector size: %w", err)
	}
	if dim <= 0 {
		return 0, fmt.Errorf("pgvector store: table %q embedding column has no dimension", s.table)
	}
	return uint64(dim), nil
}

// DeleteCollection implements vectorstore.Store.
func (s *Store) DeleteCollection(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.ident())); err != nil {
		return fmt.Errorf("pgvector store: delete collection: %w", err)
	}
	return nil
}

// Upsert implements vectorstore.Store. Rows are written in one batch; a row
// with an existing chunk ID is completely replaced.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings",
			vectorstore.ErrMismatchedLengths, len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, content, page, chunk_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    document_id  = EXCLUDED.document_id,
		    content      = EXCLUDED.content,
		    page         = EXCLUDED.page,
		    chunk_offset = EXCLUDED.chunk_offset,
		    embedding    = EXCLUDED.embedding`, s.ident())

	batch := &pgx.Batch{}
	for i, chunk := range chunks {
		batch.Queue(q,
			chunk.ID.String(),
			chunk.DocumentID.String(),
			chunk.Text,
			chunk.Page,
			chunk.Offset,
			pgvec.NewVector(embeddings[i]),
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector store: upsert %d chunks: %w", len(chunks), err)
	}
	return nil
}

// Search implements vectorstore.Store. Results are ordered by ascending
// cosine distance and reported as score = 1 - distance.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]vectorstore.SearchResult, error) {
	q := fmt.Sprintf(`
		SELECT id::text, document_id::text, content, page, chunk_offset,
		       embedding <=> $1 AS distance
		FROM   %s
		ORDER  BY distance
		LIMIT  $2`, s.ident())

	rows, err := s.pool.Query(ctx, q, pgvec.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.SearchResult, error) {
		var (
			idStr    string
			docStr   string
			content  string
			page     *int
			offset   int
			distance float64
		)
		if err := row.Scan(&idStr, &docStr, &content, &page, &offset, &distance); err != nil {
			return vectorstore.SearchResult{}, err
		}
		chunkID, err := domain.ChunkIDFromString(idStr)
		if err != nil {
			return vectorstore.SearchResult{}, err
		}
		docID, err := domain.DocumentIDFromString(docStr)
		if err != nil {
			return vectorstore.SearchResult{}, err
		}
		return vectorstore.SearchResult{
			Chunk: domain.Chunk{
				ID:         chunkID,
				DocumentID: docID,
				Text:       content,
				Page:       page,
				Offset:     offset,
			},
			Score: float32(1 - distance),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector store: scan rows: %w", err)
	}
	if results == nil {
		results = []vectorstore.SearchResult{}
	}
	return results, nil
}

// Delete implements vectorstore.Store.
func (s *Store) Delete(ctx context.Context, chunkIDs []domain.ChunkID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = id.String()
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::uuid[])`, s.ident())
	if _, err := s.pool.Exec(ctx, q, ids); err != nil {
		return fmt.Errorf("pgvector store: delete %d chunks: %w", len(ids), err)
	}
	return nil
}
