package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sandakan/internal/retrieval"
	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
)

func TestChatCompletion_NonStreaming(t *testing.T) {
	f := newFixture(4)
	f.retrieval.result = retrieval.Result{Answer: "Paris is the capital."}

	payload := `{"model":"rag-pipeline","messages":[{"role":"system","content":"be brief"},{"role":"user","content":"capital of France?"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body chatCompletionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(body.ID, "chatcmpl-") {
		t.Errorf("id = %q, want chatcmpl- prefix", body.ID)
	}
	if body.Object != "chat.completion" {
		t.Errorf("object = %q", body.Object)
	}
	if body.Model != "rag-pipeline" {
		t.Errorf("model = %q, want echo", body.Model)
	}
	if len(body.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(body.Choices))
	}
	choice := body.Choices[0]
	if choice.Message.Role != "assistant" || choice.Message.Content != "Paris is the capital." {
		t.Errorf("message = %+v", choice.Message)
	}
	if choice.FinishReason != "stop" {
		t.Errorf("finish_reason = %q", choice.FinishReason)
	}
	wantTokens := len("Paris is the capital.") / 4
	if body.Usage.CompletionTokens != wantTokens {
		t.Errorf("completion_tokens = %d, want %d", body.Usage.CompletionTokens, wantTokens)
	}

	// Retrieval must receive the last user turn, not the system prompt.
	if len(f.retrieval.queries) != 1 || f.retrieval.queries[0] != "capital of France?" {
		t.Errorf("retrieval questions = %v", f.retrieval.queries)
	}
}

func TestChatCompletion_LastUserMessageWins(t *testing.T) {
	f := newFixture(4)
	payload := `{"model":"m","messages":[{"role":"user","content":"first"},{"role":"assistant","content":"ok"},{"role":"user","content":"second"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.retrieval.queries) != 1 || f.retrieval.queries[0] != "second" {
		t.Errorf("retrieval questions = %v, want [second]", f.retrieval.queries)
	}
}

func TestChatCompletion_NoUserMessage(t *testing.T) {
	f := newFixture(4)
	payload := `{"model":"m","messages":[{"role":"system","content":"hi"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body chatErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Type != "invalid_request_error" {
		t.Errorf("error type = %q", body.Error.Type)
	}
}

func TestChatCompletion_MissingBody(t *testing.T) {
	f := newFixture(4)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletion_RetrievalError(t *testing.T) {
	f := newFixture(4)
	f.retrieval.err = errors.New("model offline")

	payload := `{"model":"m","messages":[{"role":"user","content":"q"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body chatErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Type != "api_error" {
		t.Errorf("error type = %q, want api_error", body.Error.Type)
	}
}

// sseEvents splits an SSE body into its data payloads, dropping comments.
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" || strings.HasPrefix(frame, ":") {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("unexpected SSE frame: %q", frame)
		}
		events = append(events, strings.TrimPrefix(frame, "data: "))
	}
	return events
}

func TestChatCompletion_Streaming(t *testing.T) {
	f := newFixture(4)
	f.retrieval.stream = retrieval.StreamResult{Tokens: tokenStream("Hel", "lo")}

	payload := `{"model":"rag-pipeline","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	events := sseEvents(t, rec.Body.String())
	// start, two content chunks, done, [DONE].
	if len(events) != 5 {
		t.Fatalf("events = %d (%v), want 5", len(events), events)
	}

	var start chatCompletionChunk
	if err := json.Unmarshal([]byte(events[0]), &start); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	if start.Object != "chat.completion.chunk" || start.Choices[0].Delta.Role != "assistant" {
		t.Errorf("start chunk = %+v", start)
	}
	if start.Choices[0].FinishReason != nil {
		t.Errorf("start finish_reason = %v, want null", start.Choices[0].FinishReason)
	}

	wantContent := []string{"Hel", "lo"}
	for i, want := range wantContent {
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(events[1+i]), &chunk); err != nil {
			t.Fatalf("decode content %d: %v", i, err)
		}
		if chunk.Choices[0].Delta.Content != want {
			t.Errorf("content[%d] = %q, want %q", i, chunk.Choices[0].Delta.Content, want)
		}
	}

	var done chatCompletionChunk
	if err := json.Unmarshal([]byte(events[3]), &done); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	if done.Choices[0].FinishReason == nil || *done.Choices[0].FinishReason != "stop" {
		t.Errorf("done chunk = %+v, want finish_reason stop", done)
	}

	if events[4] != "[DONE]" {
		t.Errorf("terminal event = %q, want [DONE]", events[4])
	}
}

func TestChatCompletion_StreamPersistsTurns(t *testing.T) {
	f := newFixture(4)
	f.retrieval.stream = retrieval.StreamResult{Tokens: tokenStream("Hello")}
	convID := domain.NewConversationID()

	payload := `{"model":"m","stream":true,"conversation_id":"` + convID.String() + `","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.retrieval.persistedIDs) != 1 || f.retrieval.persistedIDs[0] != convID {
		t.Errorf("persisted conversations = %v, want [%s]", f.retrieval.persistedIDs, convID)
	}
}

// Fallback streams carry no model answer, so a supplied conversation_id must
// not create a turn; the stream still ends normally.
func TestChatCompletion_FallbackStreamNotPersisted(t *testing.T) {
	f := newFixture(4)
	f.retrieval.stream = retrieval.StreamResult{Tokens: tokenStream("N/A"), Fallback: true}
	convID := domain.NewConversationID()

	payload := `{"model":"m","stream":true,"conversation_id":"` + convID.String() + `","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	events := sseEvents(t, rec.Body.String())
	if events[len(events)-1] != "[DONE]" {
		t.Errorf("terminal event = %q, want [DONE]", events[len(events)-1])
	}
	if len(f.retrieval.persistedIDs) != 0 {
		t.Errorf("PersistTurn called %d times for a fallback stream, want 0", len(f.retrieval.persistedIDs))
	}
}

func TestChatCompletion_StreamErrorTruncates(t *testing.T) {
	f := newFixture(4)
	tokens := make(chan llmclient.Token, 3)
	tokens <- llmclient.Token{Text: "Hel"}
	tokens <- llmclient.Token{Text: "lo"}
	tokens <- llmclient.Token{Err: errors.New("connection reset")}
	close(tokens)
	f.retrieval.stream = retrieval.StreamResult{Tokens: tokens}
	convID := domain.NewConversationID()

	payload := `{"model":"m","stream":true,"conversation_id":"` + convID.String() + `","messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	events := sseEvents(t, rec.Body.String())
	// start and two content chunks; no done chunk, no [DONE].
	if len(events) != 3 {
		t.Fatalf("events = %d (%v), want 3", len(events), events)
	}
	for _, raw := range events {
		if raw == "[DONE]" {
			t.Error("stream must not emit [DONE] after an error")
		}
	}

	msgs, err := f.conversations.GetMessages(context.Background(), convID, 10)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("persisted messages = %d, want 1", len(msgs))
	}
	if msgs[0].Role != domain.RoleAssistant {
		t.Errorf("role = %s, want assistant", msgs[0].Role)
	}
	if msgs[0].Content != "Hello [TRUNCATED DUE TO ERROR]" {
		t.Errorf("content = %q, want truncation marker", msgs[0].Content)
	}

	// The clean-completion persistence path must not have run.
	if len(f.retrieval.persistedIDs) != 0 {
		t.Errorf("PersistTurn called %d times, want 0", len(f.retrieval.persistedIDs))
	}
}

func TestChatCompletion_StreamKeepAlive(t *testing.T) {
	f := newFixture(4)
	tokens := make(chan llmclient.Token)
	go func() {
		time.Sleep(120 * time.Millisecond)
		close(tokens)
	}()
	f.retrieval.stream = retrieval.StreamResult{Tokens: tokens}

	srv := New(f.retrieval, f.queue, f.stage, f.jobs, f.conversations, nil, Config{
		SSEKeepAlive: 30 * time.Millisecond,
	})

	payload := `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if !strings.Contains(rec.Body.String(), ": keep-alive") {
		t.Error("expected keep-alive comment on idle stream")
	}
	events := sseEvents(t, rec.Body.String())
	if events[len(events)-1] != "[DONE]" {
		t.Errorf("terminal event = %q, want [DONE]", events[len(events)-1])
	}
}

func TestChatCompletion_StreamStartError(t *testing.T) {
	f := newFixture(4)
	f.retrieval.streamErr = errors.New("embedder down")

	payload := `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(payload)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body chatErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Type != "api_error" {
		t.Errorf("error type = %q", body.Error.Type)
	}
}
