package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type queryRequest struct {
	Question string `json:"question"`
}

type sourceChunk struct {
	Text  string  `json:"text"`
	Page  *int    `json:"page"`
	Score float32 `json:"score"`
}

type queryResponse struct {
	Answer  string        `json:"answer"`
	Sources []sourceChunk `json:"sources"`
}

// handleQuery serves POST /api/v1/query, the internal single-shot question
// form. A low-similarity fallback is a 200 with zero sources.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	result, err := s.retrieval.Query(r.Context(), req.Question, nil)
	if err != nil {
		slog.Error("query failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err))
		return
	}

	sources := make([]sourceChunk, 0, len(result.Sources))
	for _, src := range result.Sources {
		sources = append(sources, sourceChunk{Text: src.Text, Page: src.Page, Score: src.Score})
	}
	slog.Info("query successful", "sources", len(sources))
	writeJSON(w, http.StatusOK, queryResponse{Answer: result.Answer, Sources: sources})
}
