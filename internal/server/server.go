// Package server implements the HTTP surface: the OpenAI-compatible chat
// endpoints, the internal query and ingestion API, and job status lookup.
//
// Handlers translate between wire formats and the retrieval and ingestion
// services; no pipeline logic lives here. Every response carries the
// x-request-id header, echoed from the request or freshly generated.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/sandakan/internal/health"
	"github.com/MrWong99/sandakan/internal/ingest"
	"github.com/MrWong99/sandakan/internal/retrieval"
	"github.com/MrWong99/sandakan/internal/store"
	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/staging"
)

// QueryService is the retrieval surface the chat and query handlers need.
// *retrieval.Service satisfies it; tests substitute a double.
type QueryService interface {
	Query(ctx context.Context, question string, conversationID *domain.ConversationID) (retrieval.Result, error)
	QueryStream(ctx context.Context, question string) (retrieval.StreamResult, error)
	PersistTurn(ctx context.Context, conversationID domain.ConversationID, question, answer string) error
}

// Config carries the handler tunables.
type Config struct {
	// SSEKeepAlive is the interval between keep-alive comments on idle
	// streams.
	SSEKeepAlive time.Duration

	// DeleteAfterProcessing marks uploaded (not referenced) documents for
	// staging cleanup once their job finishes.
	DeleteAfterProcessing bool

	// MaxUploadBytes caps the request body size for uploads. Zero means no
	// limit.
	MaxUploadBytes int64
}

// Server holds the handler dependencies. Construct with [New], mount with
// [Server.Routes].
type Server struct {
	retrieval     QueryService
	queue         *ingest.Queue
	stage         staging.Store
	jobs          store.JobRepository
	conversations store.ConversationRepository
	health        *health.Handler
	cfg           Config
}

// New creates a Server. The health handler may carry readiness checkers for
// downstream dependencies.
func New(
	qs QueryService,
	queue *ingest.Queue,
	stage staging.Store,
	jobs store.JobRepository,
	conversations store.ConversationRepository,
	healthHandler *health.Handler,
	cfg Config,
) *Server {
	if cfg.SSEKeepAlive <= 0 {
		cfg.SSEKeepAlive = 15 * time.Second
	}
	if healthHandler == nil {
		healthHandler = health.New()
	}
	return &Server{
		retrieval:     qs,
		queue:         queue,
		stage:         stage,
		jobs:          jobs,
		conversations: conversations,
		health:        healthHandler,
		cfg:           cfg,
	}
}

// Routes returns the full route table wrapped in the request-id and CORS
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// OpenAI-compatible surface, mirrored under both prefixes.
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /api/chat/completions", s.handleChatCompletions)

	// Internal API.
	mux.HandleFunc("POST /api/v1/query", s.handleQuery)
	mux.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/v1/ingest-reference", s.handleIngestReference)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleJobStatus)

	return RequestID(CORS(mux))
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// errorResponse is the plain error body used by the internal API.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes the internal-API error shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
