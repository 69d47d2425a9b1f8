package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sandakan/internal/app"
	"github.com/MrWong99/sandakan/internal/config"
	storemock "github.com/MrWong99/sandakan/internal/store/mock"
	embeddingsmock "github.com/MrWong99/sandakan/pkg/provider/embeddings/mock"
	extractmock "github.com/MrWong99/sandakan/pkg/provider/extract/mock"
	llmmock "github.com/MrWong99/sandakan/pkg/provider/llmclient/mock"
	transcribemock "github.com/MrWong99/sandakan/pkg/provider/transcribe/mock"
	stagingmock "github.com/MrWong99/sandakan/pkg/staging/mock"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
	vectormock "github.com/MrWong99/sandakan/pkg/vectorstore/mock"
)

// testConfig returns a minimal config for wiring tests. The listen address
// picks a free port so parallel tests do not collide.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr:          "127.0.0.1:0",
			SSEKeepAliveSeconds: 15,
		},
		VectorStore: config.VectorStoreConfig{
			Kind:       config.VectorStoreQdrant,
			Collection: "chunks",
		},
		Staging: config.StagingConfig{Kind: config.StagingLocal},
		Splitter: config.SplitterConfig{
			Strategy:     "fixed",
			ChunkSize:    1000,
			ChunkOverlap: 100,
		},
		RAG: config.RAGConfig{
			TopK:                5,
			SimilarityThreshold: 0.7,
			MaxContextTokens:    2000,
			FallbackMessage:     "I don't know.",
		},
		Ingest: config.IngestConfig{QueueCapacity: 4},
	}
}

// testProviders returns a full set of mock providers with a 3-dimensional
// embedding model.
func testProviders(vectors *vectormock.Store) *app.Providers {
	return &app.Providers{
		Embeddings: &embeddingsmock.Provider{
			DimensionsValue: 3,
			ModelIDValue:    "test-embed-v1",
		},
		LLM:           &llmmock.Client{},
		Transcription: &transcribemock.Engine{},
		Extraction:    &extractmock.Loader{},
		VectorStore:   vectors,
		Staging:       &stagingmock.Store{},
	}
}

// repoOptions injects in-memory repositories so New never dials PostgreSQL.
func repoOptions() []app.Option {
	return []app.Option{
		app.WithJobRepository(&storemock.JobRepository{}),
		app.WithConversationRepository(&storemock.ConversationRepository{}),
	}
}

// TestNew_CreatesMissingCollection verifies that New creates the vector
// collection with the embedding provider's dimensionality and cosine
// distance when it does not exist yet.
func TestNew_CreatesMissingCollection(t *testing.T) {
	t.Parallel()

	vectors := &vectormock.Store{}
	application, err := app.New(context.Background(), testConfig(), testProviders(vectors), repoOptions()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer application.Shutdown(context.Background())

	if vectors.CreateCalls != 1 {
		t.Fatalf("CreateCalls = %d, want 1", vectors.CreateCalls)
	}
	if vectors.LastCreate.VectorSize != 3 {
		t.Errorf("created collection with VectorSize %d, want 3", vectors.LastCreate.VectorSize)
	}
	if vectors.LastCreate.Distance != vectorstore.DistanceCosine {
		t.Errorf("created collection with distance %q, want cosine", vectors.LastCreate.Distance)
	}
}

// TestNew_KeepsMatchingCollection verifies that an existing collection with
// the right dimensionality is left alone.
func TestNew_KeepsMatchingCollection(t *testing.T) {
	t.Parallel()

	vectors := &vectormock.Store{Exists: true, VectorSize: 3}
	application, err := app.New(context.Background(), testConfig(), testProviders(vectors), repoOptions()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer application.Shutdown(context.Background())

	if vectors.CreateCalls != 0 {
		t.Errorf("CreateCalls = %d, want 0 for an existing matching collection", vectors.CreateCalls)
	}
}

// TestNew_RefusesDimensionMismatch verifies that New fails when the existing
// collection was built with a different embedding dimensionality.
func TestNew_RefusesDimensionMismatch(t *testing.T) {
	t.Parallel()

	vectors := &vectormock.Store{Exists: true, VectorSize: 768}
	_, err := app.New(context.Background(), testConfig(), testProviders(vectors), repoOptions()...)
	if err == nil {
		t.Fatal("New() succeeded despite a dimension mismatch")
	}
	if !strings.Contains(err.Error(), "768") {
		t.Errorf("error %q does not name the existing collection size", err)
	}
}

// TestNew_CollectionCheckError verifies that a failing existence check
// prevents startup.
func TestNew_CollectionCheckError(t *testing.T) {
	t.Parallel()

	vectors := &vectormock.Store{ExistsErr: errors.New("qdrant unreachable")}
	_, err := app.New(context.Background(), testConfig(), testProviders(vectors), repoOptions()...)
	if err == nil {
		t.Fatal("New() succeeded despite the existence check failing")
	}
}

// TestNew_InvalidSplitterStrategy verifies that an unknown strategy is
// rejected during wiring.
func TestNew_InvalidSplitterStrategy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Splitter.Strategy = "recursive"
	_, err := app.New(context.Background(), cfg, testProviders(&vectormock.Store{}), repoOptions()...)
	if err == nil {
		t.Fatal("New() accepted an unknown splitter strategy")
	}
}

// TestNew_NilProviders verifies the guard against a missing provider set.
func TestNew_NilProviders(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), nil, repoOptions()...)
	if err == nil {
		t.Fatal("New() accepted nil providers")
	}
}

// TestNew_EmptyDatabaseURLUsesInMemoryStores verifies that New runs without
// Postgres when database.url is empty, backed by in-memory repositories.
func TestNew_EmptyDatabaseURLUsesInMemoryStores(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), testProviders(&vectormock.Store{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer application.Shutdown(context.Background())
}

// TestRun_StopsOnContextCancel verifies that Run returns once the context is
// cancelled and that a subsequent Shutdown completes.
func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), testProviders(&vectormock.Store{}), repoOptions()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	// Give the server goroutine a moment to start before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

// TestShutdown_Idempotent verifies that calling Shutdown twice is safe.
func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), testProviders(&vectormock.Store{}), repoOptions()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := application.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
