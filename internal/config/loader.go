package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per capability.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embeddings":    {"openai", "ollama"},
	"llm":           {"openai", "lmstudio", "azure", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"transcription": {"whisper-native", "openai"},
	"extraction":    {"plaintext", "azure-docintel"},
}

// Load reads the YAML configuration file at path, applies defaults and
// environment overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override any configuration
// key without editing the config file. The variable name after the APP_
// prefix is matched against the yaml field tags with "_" doubling as both
// the path separator and part of multi-word keys: APP_DATABASE_URL sets
// database.url, APP_RAG_TOP_K sets rag.top_k, APP_SERVER_SSE_KEEP_ALIVE_SECONDS
// sets server.sse_keep_alive_seconds. Provider entries may drop the leading
// PROVIDERS segment, so APP_LLM_API_KEY sets providers.llm.api_key.
func applyEnvOverrides(cfg *Config) {
	root := reflect.ValueOf(cfg).Elem()
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(name, "APP_") {
			continue
		}
		// APP_ENVIRONMENT selects the config profile in main; it is not a
		// config key.
		if name == "APP_ENVIRONMENT" {
			continue
		}
		segs := strings.Split(strings.ToLower(strings.TrimPrefix(name, "APP_")), "_")
		if setByPath(root, segs, value) {
			continue
		}
		if setByPath(root, append([]string{"providers"}, segs...), value) {
			continue
		}
		slog.Debug("environment variable matches no configuration key", "name", name)
	}
}

// setByPath descends struct fields by yaml tag following segs and assigns
// value to the scalar it lands on. Tags themselves contain underscores
// (listen_addr), so at every level the candidate whose tag consumes the most
// segments is tried first. Returns false when no path down to a settable
// scalar matches.
func setByPath(v reflect.Value, segs []string, value string) bool {
	if v.Kind() != reflect.Struct || len(segs) == 0 {
		return false
	}
	t := v.Type()

	type candidate struct{ field, consumed int }
	var cands []candidate
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		parts := strings.Split(tag, "_")
		if len(parts) > len(segs) || !slices.Equal(parts, segs[:len(parts)]) {
			continue
		}
		cands = append(cands, candidate{field: i, consumed: len(parts)})
	}
	slices.SortFunc(cands, func(a, b candidate) int { return b.consumed - a.consumed })

	for _, c := range cands {
		field := v.Field(c.field)
		rest := segs[c.consumed:]
		if len(rest) == 0 {
			if setScalar(field, value) {
				return true
			}
			continue
		}
		switch field.Kind() {
		case reflect.Struct:
			if setByPath(field, rest, value) {
				return true
			}
		case reflect.Pointer:
			if field.Type().Elem().Kind() != reflect.Struct {
				continue
			}
			if !field.IsNil() {
				if setByPath(field.Elem(), rest, value) {
					return true
				}
				continue
			}
			// Allocate only when the descent succeeds, so a failed match
			// does not leave a half-populated struct behind (a TLS block
			// with empty cert paths would flip the server to HTTPS).
			fresh := reflect.New(field.Type().Elem())
			if setByPath(fresh.Elem(), rest, value) {
				field.Set(fresh)
				return true
			}
		}
	}
	return false
}

// setScalar coerces value into the field. Comma-separated values fill string
// slices; maps and other composite kinds are not overridable.
func setScalar(field reflect.Value, value string) bool {
	if !field.CanSet() {
		return false
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return false
		}
		parts := strings.Split(value, ",")
		out := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(out)
	default:
		return false
	}
	return true
}

// applyDefaults fills in the values a minimal config file may omit.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.SSEKeepAliveSeconds <= 0 {
		cfg.Server.SSEKeepAliveSeconds = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogInfo
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "chunks"
	}
	if cfg.VectorStore.Kind == VectorStorePgvector && cfg.VectorStore.URL == "" {
		cfg.VectorStore.URL = cfg.Database.URL
	}
	if cfg.Splitter.Strategy == "" {
		cfg.Splitter.Strategy = "semantic"
	}
	if cfg.Splitter.ChunkSize <= 0 {
		cfg.Splitter.ChunkSize = 1000
	}
	if cfg.Splitter.MaxTokens <= 0 {
		cfg.Splitter.MaxTokens = 512
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.RAG.SimilarityThreshold == 0 {
		cfg.RAG.SimilarityThreshold = 0.7
	}
	if cfg.RAG.MaxContextTokens <= 0 {
		cfg.RAG.MaxContextTokens = 2000
	}
	if cfg.RAG.FallbackMessage == "" {
		cfg.RAG.FallbackMessage = "I don't know based on the ingested documents."
	}
	if cfg.Ingest.QueueCapacity <= 0 {
		cfg.Ingest.QueueCapacity = 32
	}
	if cfg.Staging.Kind == "" {
		cfg.Staging.Kind = StagingLocal
	}
	if cfg.Staging.Kind == StagingLocal && cfg.Staging.Path == "" {
		cfg.Staging.Path = "./staging"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	if cfg.Database.URL == "" {
		slog.Warn("database.url is not set; jobs and conversations are kept in memory and lost on restart")
	}

	if cfg.VectorStore.Kind == "" {
		errs = append(errs, errors.New("vector_store.kind is required"))
	} else if !cfg.VectorStore.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("vector_store.kind %q is invalid; valid values: qdrant, pgvector", cfg.VectorStore.Kind))
	}
	if cfg.VectorStore.Kind == VectorStoreQdrant && cfg.VectorStore.Host == "" {
		errs = append(errs, errors.New("vector_store.host is required for the qdrant store"))
	}

	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("transcription", cfg.Providers.Transcription.Name)
	validateProviderName("extraction", cfg.Providers.Extraction.Name)

	if cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("providers.embeddings.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}

	if !cfg.Staging.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("staging.kind %q is invalid; valid values: local, s3", cfg.Staging.Kind))
	}
	if cfg.Staging.Kind == StagingS3 && cfg.Staging.Bucket == "" {
		errs = append(errs, errors.New("staging.bucket is required for the s3 store"))
	}

	switch cfg.Splitter.Strategy {
	case "fixed", "semantic":
	default:
		errs = append(errs, fmt.Errorf("splitter.strategy %q is invalid; valid values: fixed, semantic", cfg.Splitter.Strategy))
	}
	if cfg.Splitter.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("splitter.chunk_overlap %d must not be negative", cfg.Splitter.ChunkOverlap))
	}
	if cfg.Splitter.Strategy == "fixed" && cfg.Splitter.ChunkOverlap >= cfg.Splitter.ChunkSize {
		slog.Warn("splitter.chunk_overlap is not smaller than splitter.chunk_size; windows will not overlap",
			"chunk_size", cfg.Splitter.ChunkSize,
			"chunk_overlap", cfg.Splitter.ChunkOverlap)
	}

	if cfg.RAG.SimilarityThreshold < -1 || cfg.RAG.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("rag.similarity_threshold %.2f is out of range [-1, 1]", cfg.RAG.SimilarityThreshold))
	}

	if cfg.Providers.Transcription.Name == "" {
		slog.Warn("providers.transcription is not configured; audio and video ingestion will fail")
	}
	if cfg.Providers.Extraction.Name == "" {
		slog.Warn("providers.extraction is not configured; pdf ingestion will fall back to plain text handling")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
