package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/google/uuid"
)

// chatMessage is one turn in an OpenAI-compatible conversation payload.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the OpenAI-compatible request body. The
// conversation_id extension attaches turn persistence to the request;
// standard OpenAI clients simply omit it.
type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    *float32      `json:"temperature,omitempty"`
	MaxTokens      *int          `json:"max_tokens,omitempty"`
	Stream         bool          `json:"stream,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// newChatCompletionResponse builds the non-streaming response envelope. The
// usage block approximates completion tokens at four bytes per token; the
// retrieval path does not expose exact counts.
func newChatCompletionResponse(model, content string) chatCompletionResponse {
	tokens := len(content) / 4
	return chatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{CompletionTokens: tokens, TotalTokens: tokens},
	}
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

func newChunk(id, model string, delta chunkDelta, finishReason *string) chatCompletionChunk {
	return chatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

// chatError is the OpenAI-compatible error body.
type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatErrorResponse struct {
	Error chatError `json:"error"`
}

// writeChatError writes the OpenAI-compatible error shape.
func writeChatError(w http.ResponseWriter, status int, msg, errType string) {
	writeJSON(w, status, chatErrorResponse{Error: chatError{Message: msg, Type: errType}})
}

// modelInfo describes one entry in the static model listing.
type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

// handleModels serves the static OpenAI-compatible model listing. The single
// model id names the whole pipeline; chat clients select it by name.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Object: "list",
		Data: []modelInfo{{
			ID:      "rag-pipeline",
			Object:  "model",
			Created: 1700000000,
			OwnedBy: "local",
		}},
	})
}

// handleChatCompletions serves POST /v1/chat/completions and its /api alias.
// The last message with role "user" drives retrieval; earlier turns are
// accepted for wire compatibility but not replayed into the model.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
		return
	}

	question := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			question = req.Messages[i].Content
			break
		}
	}
	if question == "" {
		slog.Warn("chat completion request without user message", "request_id", RequestIDFromContext(r.Context()))
		writeChatError(w, http.StatusBadRequest, "No user message provided", "invalid_request_error")
		return
	}

	var conversationID *domain.ConversationID
	if req.ConversationID != "" {
		id, err := domain.ConversationIDFromString(req.ConversationID)
		if err != nil {
			writeChatError(w, http.StatusBadRequest, "invalid conversation_id: "+req.ConversationID, "invalid_request_error")
			return
		}
		conversationID = &id
	}

	if req.Stream {
		s.streamChatCompletion(w, r, req.Model, question, conversationID)
		return
	}

	result, err := s.retrieval.Query(r.Context(), question, conversationID)
	if err != nil {
		slog.Error("chat completion failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeChatError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err), "api_error")
		return
	}
	writeJSON(w, http.StatusOK, newChatCompletionResponse(req.Model, result.Answer))
}

// streamChatCompletion writes an SSE stream of completion chunks. Frame
// order: start chunk (role only), content chunks, done chunk with
// finish_reason "stop", then the literal [DONE] line. Keep-alive comments
// cover upstream inactivity. On a mid-stream token error the accumulated
// partial answer is persisted with a truncation marker and the stream ends
// without a done chunk.
func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, model, question string, conversationID *domain.ConversationID) {
	stream, err := s.retrieval.QueryStream(r.Context(), question)
	if err != nil {
		slog.Error("streaming chat completion failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeChatError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err), "api_error")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeChatError(w, http.StatusInternalServerError, "streaming unsupported", "api_error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	chunkID := "chatcmpl-" + uuid.NewString()
	writeSSEChunk(w, newChunk(chunkID, model, chunkDelta{Role: "assistant"}, nil))
	flusher.Flush()

	keepAlive := time.NewTimer(s.cfg.SSEKeepAlive)
	defer keepAlive.Stop()

	var accumulated string
	for {
		select {
		case <-r.Context().Done():
			return

		case token, open := <-stream.Tokens:
			if !open {
				// Upstream finished cleanly. Fallback streams carry no
				// model answer and are not persisted, matching the
				// non-streaming path.
				if conversationID != nil && !stream.Fallback {
					if err := s.retrieval.PersistTurn(r.Context(), *conversationID, question, accumulated); err != nil {
						slog.Error("persisting conversation turn failed", "error", err, "conversation_id", conversationID.String())
					}
				}
				stop := "stop"
				writeSSEChunk(w, newChunk(chunkID, model, chunkDelta{}, &stop))
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
			if token.Err != nil {
				slog.Error("stream token error", "error", token.Err, "request_id", RequestIDFromContext(r.Context()))
				if conversationID != nil {
					partial := domain.NewMessage(*conversationID, domain.RoleAssistant, accumulated+" [TRUNCATED DUE TO ERROR]")
					if err := s.conversations.AppendMessage(r.Context(), partial); err != nil {
						slog.Error("persisting truncated answer failed", "error", err, "conversation_id", conversationID.String())
					}
				}
				return
			}
			accumulated += token.Text
			writeSSEChunk(w, newChunk(chunkID, model, chunkDelta{Content: token.Text}, nil))
			flusher.Flush()
			resetTimer(keepAlive, s.cfg.SSEKeepAlive)

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
			keepAlive.Reset(s.cfg.SSEKeepAlive)
		}
	}
}

// writeSSEChunk frames one JSON chunk as an SSE data event.
func writeSSEChunk(w http.ResponseWriter, chunk chatCompletionChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// resetTimer drains and restarts a timer that may have fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
