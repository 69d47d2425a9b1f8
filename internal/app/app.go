// Package app wires all sandakan subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and drives the ingestion worker, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithJobRepository, WithConversationRepository, etc.). When an option is
// not provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/sandakan/internal/config"
	"github.com/MrWong99/sandakan/internal/events"
	"github.com/MrWong99/sandakan/internal/health"
	"github.com/MrWong99/sandakan/internal/ingest"
	"github.com/MrWong99/sandakan/internal/observe"
	"github.com/MrWong99/sandakan/internal/retrieval"
	"github.com/MrWong99/sandakan/internal/server"
	"github.com/MrWong99/sandakan/internal/store"
	storemock "github.com/MrWong99/sandakan/internal/store/mock"
	"github.com/MrWong99/sandakan/pkg/provider/embeddings"
	"github.com/MrWong99/sandakan/pkg/provider/extract"
	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
	"github.com/MrWong99/sandakan/pkg/provider/transcribe"
	"github.com/MrWong99/sandakan/pkg/splitter"
	"github.com/MrWong99/sandakan/pkg/staging"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	Embeddings    embeddings.Provider
	LLM           llmclient.Client
	Transcription transcribe.Engine
	Extraction    extract.FileLoader
	VectorStore   vectorstore.Store
	Staging       staging.Store
	Events        events.Publisher
}

// App owns all subsystem lifetimes and serves the document QA pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New, torn down in Shutdown.
	pool          *pgxpool.Pool
	jobs          store.JobRepository
	conversations store.ConversationRepository
	split         splitter.Splitter
	retrieval     *retrieval.Service
	queue         *ingest.Queue
	worker        *ingest.Worker
	server        *server.Server
	httpServer    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJobRepository injects a job repository instead of connecting to
// PostgreSQL.
func WithJobRepository(r store.JobRepository) Option {
	return func(a *App) { a.jobs = r }
}

// WithConversationRepository injects a conversation repository instead of
// connecting to PostgreSQL.
func WithConversationRepository(r store.ConversationRepository) Option {
	return func(a *App) { a.conversations = r }
}

// WithSplitter injects a splitter instead of building one from config.
func WithSplitter(s splitter.Splitter) Option {
	return func(a *App) { a.split = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: database connection and
// migration, the vector collection dimension check, splitter and retrieval
// construction, and the HTTP route table. The queue worker does not start
// until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, fmt.Errorf("app: providers must not be nil")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Relational stores ─────────────────────────────────────────────
	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	// ── 2. Vector collection ─────────────────────────────────────────────
	if err := a.initVectorIndex(ctx); err != nil {
		return nil, fmt.Errorf("app: init vector index: %w", err)
	}

	// ── 3. Splitter ──────────────────────────────────────────────────────
	if err := a.initSplitter(); err != nil {
		return nil, fmt.Errorf("app: init splitter: %w", err)
	}

	// ── 4. Retrieval service ─────────────────────────────────────────────
	metrics := observe.DefaultMetrics()
	a.retrieval = retrieval.NewService(
		providers.Embeddings,
		providers.VectorStore,
		providers.LLM,
		a.conversations,
		splitter.NewTiktokenCounter(),
		metrics,
		retrieval.Config{
			TopK:                cfg.RAG.TopK,
			SimilarityThreshold: cfg.RAG.SimilarityThreshold,
			MaxContextTokens:    cfg.RAG.MaxContextTokens,
			FallbackMessage:     cfg.RAG.FallbackMessage,
		},
	)

	// ── 5. Ingestion queue + worker ──────────────────────────────────────
	a.queue = ingest.NewQueue(cfg.Ingest.QueueCapacity)
	publisher := providers.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	a.worker = ingest.NewWorker(
		a.queue,
		providers.Staging,
		providers.Extraction,
		providers.Transcription,
		a.split,
		providers.Embeddings,
		providers.VectorStore,
		a.jobs,
		publisher,
		metrics,
	)

	// ── 6. HTTP server ───────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStores connects to PostgreSQL and builds the repositories, unless both
// were injected. An empty database.url selects in-memory repositories so the
// service can run without Postgres; their state is lost on restart.
func (a *App) initStores(ctx context.Context) error {
	if a.jobs != nil && a.conversations != nil {
		return nil // both injected
	}

	if a.cfg.Database.URL == "" {
		slog.Warn("database.url is empty; using in-memory job and conversation stores, state is lost on restart")
		if a.jobs == nil {
			a.jobs = &storemock.JobRepository{}
		}
		if a.conversations == nil {
			a.conversations = &storemock.ConversationRepository{}
		}
		return nil
	}

	pool, err := store.Connect(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	if a.cfg.Database.RunMigrations {
		if err := store.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	if a.jobs == nil {
		a.jobs = store.NewPostgresJobRepository(pool)
	}
	if a.conversations == nil {
		a.conversations = store.NewPostgresConversationRepository(pool)
	}
	return nil
}

// initVectorIndex ensures the chunk collection exists and matches the
// embedding provider's dimensionality. A dimension mismatch means the index
// was built with a different embedding model; starting anyway would mix
// incompatible vectors, so New refuses instead.
func (a *App) initVectorIndex(ctx context.Context) error {
	dims := a.providers.Embeddings.Dimensions()
	if dims <= 0 {
		return fmt.Errorf("embeddings provider %q reports invalid dimensionality %d",
			a.providers.Embeddings.ModelID(), dims)
	}

	exists, err := a.providers.VectorStore.CollectionExists(ctx)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		size, err := a.providers.VectorStore.CollectionVectorSize(ctx)
		if err != nil {
			return fmt.Errorf("read collection vector size: %w", err)
		}
		if size != uint64(dims) {
			return fmt.Errorf("collection holds %d-dimensional vectors but embeddings model %q produces %d; re-ingest with a matching model or drop the collection",
				size, a.providers.Embeddings.ModelID(), dims)
		}
		return nil
	}

	created, err := a.providers.VectorStore.CreateCollection(ctx, vectorstore.CollectionConfig{
		VectorSize: uint64(dims),
		Distance:   vectorstore.DistanceCosine,
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if created {
		slog.Info("created vector collection", "dimensions", dims)
	}
	return nil
}

// initSplitter builds the configured chunking strategy if none was injected.
func (a *App) initSplitter() error {
	if a.split != nil {
		return nil
	}

	strategy := splitter.Strategy(a.cfg.Splitter.Strategy)
	size, overlap := a.cfg.Splitter.ChunkSize, a.cfg.Splitter.ChunkOverlap
	if strategy == splitter.StrategySemantic {
		size, overlap = a.cfg.Splitter.MaxTokens, a.cfg.Splitter.OverlapTokens
	}

	split, err := splitter.New(strategy, size, overlap)
	if err != nil {
		return err
	}
	a.split = split
	return nil
}

// initHTTP builds the route table, health checks, and the http.Server.
func (a *App) initHTTP() {
	var checkers []health.Checker
	if a.pool != nil {
		pool := a.pool
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	}
	checkers = append(checkers, health.Checker{
		Name: "vector_store",
		Check: func(ctx context.Context) error {
			exists, err := a.providers.VectorStore.CollectionExists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("collection missing")
			}
			return nil
		},
	})

	a.server = server.New(
		a.retrieval,
		a.queue,
		a.providers.Staging,
		a.jobs,
		a.conversations,
		health.New(checkers...),
		server.Config{
			SSEKeepAlive:          time.Duration(a.cfg.Server.SSEKeepAliveSeconds) * time.Second,
			DeleteAfterProcessing: a.cfg.Ingest.DeleteAfterProcessing,
			MaxUploadBytes:        int64(a.cfg.Ingest.MaxFileSizeMB) << 20,
		},
	)

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(a.server.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the ingestion worker and the HTTP server, then blocks until ctx
// is cancelled or the server fails. On cancellation Run returns ctx.Err();
// call Shutdown to tear the app down.
func (a *App) Run(ctx context.Context) error {
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running",
		"addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
		"vector_store", string(a.cfg.VectorStore.Kind),
		"staging", string(a.cfg.Staging.Kind))

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = fmt.Errorf("app: http server: %w", err)
	}

	// Stop accepting jobs and let the worker drain what it already holds.
	a.queue.Close()
	wg.Wait()
	return runErr
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		if closer, ok := a.providers.Events.(interface{ Close() error }); ok && a.providers.Events != nil {
			if err := closer.Close(); err != nil {
				slog.Warn("event publisher close error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
