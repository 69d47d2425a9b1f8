// Package retrieval implements the question answering service: embed the
// question, search the vector index, gate candidates by similarity and
// token budget, and complete an answer over the admitted context.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/sandakan/internal/observe"
	"github.com/MrWong99/sandakan/internal/store"
	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/provider/embeddings"
	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
	"github.com/MrWong99/sandakan/pkg/splitter"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
)

// Error kinds of the retrieval path. Embedding and search errors
// short-circuit before any LLM call; completion errors propagate from the
// upstream model; repository errors only occur when a conversation id was
// supplied.
var (
	ErrEmbedding  = errors.New("retrieval: embedding failed")
	ErrSearch     = errors.New("retrieval: search failed")
	ErrCompletion = errors.New("retrieval: completion failed")
	ErrRepository = errors.New("retrieval: repository failed")
)

// Config tunes the admission gate of the service.
type Config struct {
	// TopK is the number of candidates requested from the vector store.
	TopK int

	// SimilarityThreshold is the inclusive minimum score a candidate needs
	// to be considered at all.
	SimilarityThreshold float32

	// MaxContextTokens bounds the cumulative token count of the admitted
	// chunks.
	MaxContextTokens int

	// FallbackMessage is returned verbatim when no candidate passes the
	// threshold.
	FallbackMessage string
}

// Source is one admitted chunk as reported to the caller.
type Source struct {
	Text  string
	Page  *int
	Score float32
}

// Result is the outcome of a non-streaming query.
type Result struct {
	Answer  string
	Sources []Source
}

// StreamResult is the outcome of a streaming query. Tokens must be drained
// fully. Fallback is set when the stream carries only the fallback message
// and no model was invoked.
type StreamResult struct {
	Tokens   <-chan llmclient.Token
	Sources  []Source
	Fallback bool
}

// Service answers questions over the ingested corpus.
// All methods are safe for concurrent use.
type Service struct {
	embedder      embeddings.Provider
	vectors       vectorstore.Store
	llm           llmclient.Client
	conversations store.ConversationRepository
	counter       splitter.TokenCounter
	metrics       *observe.Metrics
	cfg           Config
}

// NewService wires the retrieval dependencies together. A nil metrics falls
// back to the package-level default instruments.
func NewService(
	embedder embeddings.Provider,
	vectors vectorstore.Store,
	llm llmclient.Client,
	conversations store.ConversationRepository,
	counter splitter.TokenCounter,
	metrics *observe.Metrics,
	cfg Config,
) *Service {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Service{
		embedder:      embedder,
		vectors:       vectors,
		llm:           llm,
		conversations: conversations,
		counter:       counter,
		metrics:       metrics,
		cfg:           cfg,
	}
}

// Query answers a question in one shot. When conversationID is non-nil the
// user and assistant turns are persisted after a successful completion.
func (s *Service) Query(ctx context.Context, question string, conversationID *domain.ConversationID) (Result, error) {
	admitted, fallback, err := s.retrieve(ctx, question)
	if err != nil {
		return Result{}, err
	}
	if fallback {
		s.metrics.RecordFallback(ctx)
		return Result{Answer: s.cfg.FallbackMessage, Sources: []Source{}}, nil
	}

	llmStart := time.Now()
	answer, err := s.llm.Complete(ctx, question, contextText(admitted))
	s.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, "llm", "error")
		s.metrics.RecordProviderError(ctx, "llm")
		return Result{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "ok")

	if conversationID != nil {
		if err := s.PersistTurn(ctx, *conversationID, question, answer); err != nil {
			return Result{}, err
		}
	}
	return Result{Answer: answer, Sources: sources(admitted)}, nil
}

// QueryStream answers a question as a token stream. On the fallback path
// the stream emits exactly the fallback message and closes without any
// model call. Persistence of the assistant turn is left to the consumer,
// which knows how much of the stream actually reached the client.
func (s *Service) QueryStream(ctx context.Context, question string) (StreamResult, error) {
	admitted, fallback, err := s.retrieve(ctx, question)
	if err != nil {
		return StreamResult{}, err
	}
	if fallback {
		s.metrics.RecordFallback(ctx)
		tokens := make(chan llmclient.Token, 1)
		tokens <- llmclient.Token{Text: s.cfg.FallbackMessage}
		close(tokens)
		return StreamResult{Tokens: tokens, Sources: []Source{}, Fallback: true}, nil
	}

	tokens, err := s.llm.CompleteStream(ctx, question, contextText(admitted))
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, "llm", "error")
		s.metrics.RecordProviderError(ctx, "llm")
		return StreamResult{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "ok")
	return StreamResult{Tokens: tokens, Sources: sources(admitted)}, nil
}

// PersistTurn appends the user question and the assistant answer to the
// conversation, in that order.
func (s *Service) PersistTurn(ctx context.Context, conversationID domain.ConversationID, question, answer string) error {
	userMsg := domain.NewMessage(conversationID, domain.RoleUser, question)
	if err := s.conversations.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
	assistantMsg := domain.NewMessage(conversationID, domain.RoleAssistant, answer)
	if err := s.conversations.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return nil
}

// retrieve runs the shared embed, search and admission steps. fallback is
// true when the result set is empty or the best score misses the threshold.
func (s *Service) retrieve(ctx context.Context, question string) (admitted []vectorstore.SearchResult, fallback bool, err error) {
	retrieveStart := time.Now()
	defer func() {
		s.metrics.RetrievalDuration.Record(ctx, time.Since(retrieveStart).Seconds())
	}()

	embedStart := time.Now()
	embedding, err := s.embedder.Embed(ctx, question)
	s.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, "embeddings", "error")
		s.metrics.RecordProviderError(ctx, "embeddings")
		return nil, false, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	s.metrics.RecordProviderRequest(ctx, "embeddings", "ok")

	var results []vectorstore.SearchResult
	if s.cfg.TopK > 0 {
		results, err = s.vectors.Search(ctx, embedding, s.cfg.TopK)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrSearch, err)
		}
	}

	if len(results) == 0 || results[0].Score < s.cfg.SimilarityThreshold {
		best := float32(0)
		if len(results) > 0 {
			best = results[0].Score
		}
		slog.Debug("retrieval fell back", "candidates", len(results), "best_score", best)
		return nil, true, nil
	}

	// Admission walks in descending score and stops at the first candidate
	// that would overflow the budget, preserving relevance ordering.
	accumulated := 0
	for i := range results {
		if results[i].Score < s.cfg.SimilarityThreshold {
			continue
		}
		tokens, err := s.counter.Count(results[i].Chunk.Text)
		if err != nil {
			return nil, false, fmt.Errorf("retrieval: count tokens: %w", err)
		}
		if accumulated+tokens > s.cfg.MaxContextTokens {
			break
		}
		accumulated += tokens
		admitted = append(admitted, results[i])
	}
	return admitted, false, nil
}

// contextText joins the admitted chunk texts into the prompt context.
func contextText(admitted []vectorstore.SearchResult) string {
	parts := make([]string, len(admitted))
	for i, r := range admitted {
		parts[i] = r.Chunk.Text
	}
	return strings.Join(parts, "\n\n")
}

// sources converts admitted results into the caller-facing representation.
func sources(admitted []vectorstore.SearchResult) []Source {
	out := make([]Source, len(admitted))
	for i, r := range admitted {
		out[i] = Source{Text: r.Chunk.Text, Page: r.Chunk.Page, Score: r.Score}
	}
	return out
}
