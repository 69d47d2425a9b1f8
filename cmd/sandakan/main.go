// Command sandakan is the main entry point for the sandakan document QA server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sandakan/internal/app"
	"github.com/MrWong99/sandakan/internal/config"
	"github.com/MrWong99/sandakan/internal/events"
	"github.com/MrWong99/sandakan/internal/observe"
	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/sandakan/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/sandakan/pkg/provider/embeddings/openai"
	"github.com/MrWong99/sandakan/pkg/provider/embeddings/rediscache"
	"github.com/MrWong99/sandakan/pkg/provider/extract"
	"github.com/MrWong99/sandakan/pkg/provider/extract/azuredocintel"
	"github.com/MrWong99/sandakan/pkg/provider/extract/plaintext"
	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
	"github.com/MrWong99/sandakan/pkg/provider/llmclient/anyllm"
	"github.com/MrWong99/sandakan/pkg/provider/llmclient/openaicompat"
	"github.com/MrWong99/sandakan/pkg/provider/transcribe"
	oatranscribe "github.com/MrWong99/sandakan/pkg/provider/transcribe/openai"
	"github.com/MrWong99/sandakan/pkg/provider/transcribe/whisper"
	"github.com/MrWong99/sandakan/pkg/staging"
	localstaging "github.com/MrWong99/sandakan/pkg/staging/local"
	s3staging "github.com/MrWong99/sandakan/pkg/staging/s3"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
	"github.com/MrWong99/sandakan/pkg/vectorstore/pgvector"
	"github.com/MrWong99/sandakan/pkg/vectorstore/qdrant"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env file next to the binary feeds the APP_* overrides; absence is fine.
	_ = godotenv.Load()

	// APP_ENVIRONMENT selects a named profile (config.<env>.yaml) unless an
	// explicit -config path was given.
	if env := os.Getenv("APP_ENVIRONMENT"); env != "" && *configPath == "config.yaml" {
		candidate := "config." + env + ".yaml"
		if _, err := os.Stat(candidate); err == nil {
			*configPath = candidate
		}
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sandakan: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sandakan: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("sandakan starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Logging.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		shutdownApp(application)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	if err := shutdownApp(application); err != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// shutdownApp tears the application down with a bounded grace period.
func shutdownApp(application *app.App) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return err
	}
	return nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// openAICompatProviders are chat providers served by the plain
// OpenAI-compatible client.
var openAICompatProviders = []string{"openai", "lmstudio", "azure"}

// anyLLMProviders are chat providers served through any-llm-go.
var anyLLMProviders = []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry (or the vector store/staging
// section) and constructs the provider from the real implementation packages.
// cfg is captured for cross-cutting settings such as the RAG system prompt.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── Chat ──────────────────────────────────────────────────────────────────

	for _, providerName := range openAICompatProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llmclient.Client, error) {
			return openaicompat.New(openaicompat.Config{
				Provider:      openaicompat.ProviderName(providerName),
				APIKey:        entry.APIKey,
				Model:         entry.Model,
				BaseURL:       entry.BaseURL,
				AzureEndpoint: entry.StringOption("azure_endpoint", ""),
				MaxTokens:     entry.IntOption("max_tokens", 0),
				Temperature:   float32(entry.FloatOption("temperature", 0)),
				SystemPrompt:  cfg.RAG.SystemPrompt,
			})
		})
	}

	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llmclient.Client, error) {
			var opts []anyllm.Option
			if cfg.RAG.SystemPrompt != "" {
				opts = append(opts, anyllm.WithSystemPrompt(cfg.RAG.SystemPrompt))
			}
			if n := entry.IntOption("max_tokens", 0); n > 0 {
				opts = append(opts, anyllm.WithMaxTokens(n))
			}
			if t := entry.FloatOption("temperature", -1); t >= 0 {
				opts = append(opts, anyllm.WithTemperature(t))
			}
			var backendOpts []anyllmlib.Option
			if entry.APIKey != "" {
				backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts, backendOpts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := entry.IntOption("dimensions", 0); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscription("openai", func(entry config.ProviderEntry) (transcribe.Engine, error) {
		var opts []oatranscribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatranscribe.WithBaseURL(entry.BaseURL))
		}
		return oatranscribe.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranscription("whisper-native", func(entry config.ProviderEntry) (transcribe.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Extraction ────────────────────────────────────────────────────────────

	reg.RegisterExtraction("plaintext", func(config.ProviderEntry) (extract.FileLoader, error) {
		return plaintext.New(), nil
	})

	reg.RegisterExtraction("azure-docintel", func(entry config.ProviderEntry) (extract.FileLoader, error) {
		endpoint := entry.BaseURL
		if endpoint == "" {
			endpoint = entry.StringOption("endpoint", "")
		}
		azure, err := azuredocintel.New(endpoint, entry.APIKey)
		if err != nil {
			return nil, err
		}
		// Plain text never needs a network round trip.
		return extract.NewComposite(map[domain.ContentType]extract.FileLoader{
			domain.ContentTypeText: plaintext.New(),
			domain.ContentTypePdf:  azure,
		}), nil
	})

	// ── Vector stores ─────────────────────────────────────────────────────────

	reg.RegisterVectorStore(config.VectorStoreQdrant, func(vc config.VectorStoreConfig) (vectorstore.Store, error) {
		var opts []qdrant.Option
		if vc.APIKey != "" {
			opts = append(opts, qdrant.WithAPIKey(vc.APIKey))
		}
		if vc.TLS {
			opts = append(opts, qdrant.WithTLS())
		}
		return qdrant.New(vc.Host, vc.Port, vc.Collection, opts...)
	})

	reg.RegisterVectorStore(config.VectorStorePgvector, func(vc config.VectorStoreConfig) (vectorstore.Store, error) {
		pool, err := pgxpool.New(context.Background(), vc.URL)
		if err != nil {
			return nil, fmt.Errorf("pgvector pool: %w", err)
		}
		return pgvector.New(pool, vc.Collection), nil
	})

	// ── Staging stores ────────────────────────────────────────────────────────

	reg.RegisterStaging(config.StagingLocal, func(sc config.StagingConfig) (staging.Store, error) {
		return localstaging.New(sc.Path)
	})

	reg.RegisterStaging(config.StagingS3, func(sc config.StagingConfig) (staging.Store, error) {
		var opts []s3staging.Option
		if sc.Region != "" {
			opts = append(opts, s3staging.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			opts = append(opts, s3staging.WithEndpoint(sc.Endpoint))
		}
		if sc.AccessKey != "" {
			opts = append(opts, s3staging.WithStaticCredentials(sc.AccessKey, sc.SecretKey))
		}
		return s3staging.New(context.Background(), sc.Bucket, opts...)
	})
}

// buildProviders instantiates the providers named in cfg via the registry and
// returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", cfg.Providers.Embeddings.Name, err)
	}
	if cfg.Cache.Addr != "" {
		var opts []rediscache.Option
		if cfg.Cache.TTLHours > 0 {
			opts = append(opts, rediscache.WithTTL(time.Duration(cfg.Cache.TTLHours)*time.Hour))
		}
		if cfg.Cache.Password != "" {
			opts = append(opts, rediscache.WithPassword(cfg.Cache.Password))
		}
		embedder, err = rediscache.New(embedder, cfg.Cache.Addr, opts...)
		if err != nil {
			return nil, fmt.Errorf("wrap embeddings with redis cache: %w", err)
		}
		slog.Info("embedding cache enabled", "addr", cfg.Cache.Addr)
	}
	ps.Embeddings = embedder
	slog.Info("provider created", "kind", "embeddings", "name", cfg.Providers.Embeddings.Name)

	ps.LLM, err = reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	// Transcription is optional; without it media ingestion jobs fail with a
	// clear error while text and PDF ingestion keeps working.
	if name := cfg.Providers.Transcription.Name; name != "" {
		ps.Transcription, err = reg.CreateTranscription(cfg.Providers.Transcription)
		if err != nil {
			return nil, fmt.Errorf("create transcription provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "transcription", "name", name)
	} else {
		ps.Transcription = transcribe.Unavailable{}
	}

	if name := cfg.Providers.Extraction.Name; name != "" {
		ps.Extraction, err = reg.CreateExtraction(cfg.Providers.Extraction)
		if err != nil {
			return nil, fmt.Errorf("create extraction provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "extraction", "name", name)
	} else {
		ps.Extraction = plaintext.New()
	}

	ps.VectorStore, err = reg.CreateVectorStore(cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("create vector store %q: %w", cfg.VectorStore.Kind, err)
	}
	slog.Info("vector store created", "kind", cfg.VectorStore.Kind, "collection", cfg.VectorStore.Collection)

	ps.Staging, err = reg.CreateStaging(cfg.Staging)
	if err != nil {
		return nil, fmt.Errorf("create staging store %q: %w", cfg.Staging.Kind, err)
	}
	slog.Info("staging store created", "kind", cfg.Staging.Kind)

	if len(cfg.Events.Brokers) > 0 {
		ps.Events = events.NewKafka(cfg.Events.Brokers, cfg.Events.Topic)
		slog.Info("job status events enabled", "brokers", cfg.Events.Brokers)
	} else {
		ps.Events = events.Nop{}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════════╗")
	fmt.Println("║          sandakan — startup summary        ║")
	fmt.Println("╠════════════════════════════════════════════╣")
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Transcription", cfg.Providers.Transcription.Name, cfg.Providers.Transcription.Model)
	printProvider("Extraction", cfg.Providers.Extraction.Name, "")
	printProvider("Vector store", string(cfg.VectorStore.Kind), cfg.VectorStore.Collection)
	printProvider("Staging", string(cfg.Staging.Kind), "")
	if len(cfg.Events.Brokers) > 0 {
		printProvider("Events", "kafka", "")
	} else {
		printProvider("Events", "", "")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-23s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚════════════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 23 {
		value = value[:20] + "…"
	}
	fmt.Printf("║  %-14s  : %-23s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var lvl slog.Level
	switch cfg.Level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.JSON || os.Getenv("LOG_FORMAT") == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
