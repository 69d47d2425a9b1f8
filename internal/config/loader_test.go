package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/sandakan/internal/config"
)

// An empty database.url selects the in-memory stores, so the config is still
// valid.
func TestValidate_EmptyDatabaseURLAllowed(t *testing.T) {
	t.Parallel()
	yaml := `
vector_store:
  kind: qdrant
  host: localhost
providers:
  embeddings:
    name: openai
  llm:
    name: openai
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "" {
		t.Errorf("database.url: got %q, want empty", cfg.Database.URL)
	}
}

func TestValidate_MissingVectorStoreKind(t *testing.T) {
	t.Parallel()
	yaml := `
database:
  url: postgres://localhost/test
providers:
  embeddings:
    name: openai
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing vector_store.kind, got nil")
	}
	if !strings.Contains(err.Error(), "vector_store.kind") {
		t.Errorf("error should mention vector_store.kind, got: %v", err)
	}
}

func TestValidate_InvalidVectorStoreKind(t *testing.T) {
	t.Parallel()
	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: faiss
providers:
  embeddings:
    name: openai
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid vector_store.kind, got nil")
	}
	if !strings.Contains(err.Error(), "faiss") {
		t.Errorf("error should mention the invalid kind, got: %v", err)
	}
}

func TestValidate_QdrantRequiresHost(t *testing.T) {
	t.Parallel()
	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: qdrant
providers:
  embeddings:
    name: openai
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for qdrant without host, got nil")
	}
	if !strings.Contains(err.Error(), "vector_store.host") {
		t.Errorf("error should mention vector_store.host, got: %v", err)
	}
}

func TestValidate_S3RequiresBucket(t *testing.T) {
	t.Parallel()
	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: pgvector
providers:
  embeddings:
    name: openai
  llm:
    name: openai
staging:
  kind: s3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for s3 staging without bucket, got nil")
	}
	if !strings.Contains(err.Error(), "staging.bucket") {
		t.Errorf("error should mention staging.bucket, got: %v", err)
	}
}

func TestValidate_InvalidSimilarityThreshold(t *testing.T) {
	t.Parallel()
	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: pgvector
providers:
  embeddings:
    name: openai
  llm:
    name: openai
rag:
  similarity_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range similarity_threshold, got nil")
	}
	if !strings.Contains(err.Error(), "similarity_threshold") {
		t.Errorf("error should mention similarity_threshold, got: %v", err)
	}
}

func TestValidate_InvalidSplitterStrategy(t *testing.T) {
	t.Parallel()
	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: pgvector
providers:
  embeddings:
    name: openai
  llm:
    name: openai
splitter:
  strategy: recursive
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid splitter.strategy, got nil")
	}
	if !strings.Contains(err.Error(), "splitter.strategy") {
		t.Errorf("error should mention splitter.strategy, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	// No vector store, no providers: every failure should be reported in one
	// joined error.
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"vector_store.kind", "providers.embeddings.name", "providers.llm.name"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_DATABASE_URL", "postgres://env-host/db")
	t.Setenv("APP_LLM_API_KEY", "sk-from-env")
	t.Setenv("APP_EVENTS_BROKERS", "kafka1:9092,kafka2:9092")

	yaml := `
database:
  url: postgres://file-host/db
vector_store:
  kind: pgvector
providers:
  embeddings:
    name: openai
  llm:
    name: openai
    api_key: sk-from-file
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "postgres://env-host/db" {
		t.Errorf("database.url: got %q, want env override", cfg.Database.URL)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("llm.api_key: got %q, want env override", cfg.Providers.LLM.APIKey)
	}
	if len(cfg.Events.Brokers) != 2 || cfg.Events.Brokers[1] != "kafka2:9092" {
		t.Errorf("events.brokers: got %v, want two brokers from env", cfg.Events.Brokers)
	}
}

// Any configuration key is reachable through the APP_ naming scheme, not
// just a fixed set.
func TestEnvOverrides_GenericKeys(t *testing.T) {
	t.Setenv("APP_RAG_TOP_K", "9")
	t.Setenv("APP_RAG_SIMILARITY_THRESHOLD", "0.55")
	t.Setenv("APP_DATABASE_RUN_MIGRATIONS", "true")
	t.Setenv("APP_SERVER_SSE_KEEP_ALIVE_SECONDS", "30")
	t.Setenv("APP_VECTOR_STORE_COLLECTION", "docs")

	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: pgvector
providers:
  embeddings:
    name: openai
  llm:
    name: openai
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RAG.TopK != 9 {
		t.Errorf("rag.top_k: got %d, want 9", cfg.RAG.TopK)
	}
	if cfg.RAG.SimilarityThreshold != 0.55 {
		t.Errorf("rag.similarity_threshold: got %v, want 0.55", cfg.RAG.SimilarityThreshold)
	}
	if !cfg.Database.RunMigrations {
		t.Error("database.run_migrations: got false, want true")
	}
	if cfg.Server.SSEKeepAliveSeconds != 30 {
		t.Errorf("server.sse_keep_alive_seconds: got %d, want 30", cfg.Server.SSEKeepAliveSeconds)
	}
	if cfg.VectorStore.Collection != "docs" {
		t.Errorf("vector_store.collection: got %q, want docs", cfg.VectorStore.Collection)
	}
}

// TestEnvOverrides_TLSPointer verifies that the TLS block is allocated when
// a TLS key is overridden, and that unmatched variables never allocate one.
func TestEnvOverrides_TLSPointer(t *testing.T) {
	t.Setenv("APP_SERVER_TLS_CERT_FILE", "/etc/ssl/server.crt")
	t.Setenv("APP_SERVER_TLS_KEY_FILE", "/etc/ssl/server.key")
	t.Setenv("APP_SERVER_TLS_BOGUS", "x")

	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: pgvector
providers:
  embeddings:
    name: openai
  llm:
    name: openai
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.TLS == nil {
		t.Fatal("server.tls: got nil, want allocated block")
	}
	if cfg.Server.TLS.CertFile != "/etc/ssl/server.crt" {
		t.Errorf("server.tls.cert_file: got %q", cfg.Server.TLS.CertFile)
	}
	if cfg.Server.TLS.KeyFile != "/etc/ssl/server.key" {
		t.Errorf("server.tls.key_file: got %q", cfg.Server.TLS.KeyFile)
	}
}

// TestEnvOverrides_UnmatchedDoesNotAllocate verifies that a variable which
// matches no key leaves optional blocks untouched.
func TestEnvOverrides_UnmatchedDoesNotAllocate(t *testing.T) {
	t.Setenv("APP_SERVER_TLS_BOGUS", "x")

	yaml := `
database:
  url: postgres://localhost/test
vector_store:
  kind: pgvector
providers:
  embeddings:
    name: openai
  llm:
    name: openai
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.TLS != nil {
		t.Errorf("server.tls: got %+v, want nil", cfg.Server.TLS)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}
