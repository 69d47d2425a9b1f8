package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/sandakan/internal/ingest"
	"github.com/MrWong99/sandakan/internal/store"
	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/staging"
)

// ingestResponse acknowledges an accepted ingestion job. Processing is
// asynchronous; clients poll the job endpoint for the outcome.
type ingestResponse struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	Message    string `json:"message"`
}

// handleIngest serves POST /api/v1/ingest. The first file part of the
// multipart body is streamed into the staging store without buffering the
// upload in memory; the job is then created and enqueued. Any failure after
// a successful store deletes the staged object before the error is returned.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}

	part, err := nextFilePart(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer part.Close()

	filename := part.FileName()
	if filename == "" {
		filename = "unknown"
	}
	mime := part.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	contentType, ok := domain.ContentTypeFromMIME(mime)
	if !ok {
		slog.Warn("unsupported content type", "content_type", mime, "filename", filename)
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported content type: "+mime)
		return
	}

	docID := domain.NewDocumentID()
	path := domain.NewStoragePath(docID, filename)
	written, err := s.stage.Store(r.Context(), path, part, -1)
	if err != nil {
		slog.Error("staging upload failed", "error", err, "filename", filename)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store upload: %v", err))
		return
	}

	doc := domain.Document{
		ID:          docID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   written,
	}

	jobID, err := s.createAndEnqueue(r.Context(), doc, path, s.cfg.DeleteAfterProcessing)
	if err != nil {
		s.cleanupStaged(path)
		var full *queueFullError
		if errors.As(err, &full) {
			writeError(w, http.StatusServiceUnavailable, "Ingestion queue full or worker unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create job: %v", err))
		return
	}

	slog.Info("document ingestion job enqueued",
		"job_id", jobID.String(),
		"document_id", docID.String(),
		"filename", filename,
		"bytes", written)
	writeJSON(w, http.StatusAccepted, ingestResponse{
		DocumentID: docID.String(),
		JobID:      jobID.String(),
		Message:    "Document ingestion started",
	})
}

// nextFilePart advances to the first part that carries a file. Form fields
// without a filename are skipped.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("server: multipart body has no file part")
			}
			return nil, err
		}
		if part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// ingestReferenceRequest names an object already present in the staging
// store.
type ingestReferenceRequest struct {
	StoragePath string `json:"storage_path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// handleIngestReference serves POST /api/v1/ingest-reference. The referenced
// object stays in staging after processing; only direct uploads are subject
// to cleanup.
func (s *Server) handleIngestReference(w http.ResponseWriter, r *http.Request) {
	var req ingestReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	contentType, ok := domain.ContentTypeFromMIME(req.ContentType)
	if !ok {
		slog.Warn("unsupported content type in reference request", "content_type", req.ContentType)
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported content type: "+req.ContentType)
		return
	}

	path, err := domain.StoragePathFromRaw(req.StoragePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid storage_path: "+err.Error())
		return
	}

	size, err := s.stage.Head(r.Context(), path)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			slog.Warn("referenced file not found in storage", "path", req.StoragePath)
			writeError(w, http.StatusNotFound, "File not found in storage: "+req.StoragePath)
			return
		}
		slog.Error("stat of referenced file failed", "error", err, "path", req.StoragePath)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Storage error: %v", err))
		return
	}

	doc := domain.Document{
		ID:          path.DocumentID(),
		Filename:    req.Filename,
		ContentType: contentType,
		SizeBytes:   size,
	}

	jobID, err := s.createAndEnqueue(r.Context(), doc, path, false)
	if err != nil {
		var full *queueFullError
		if errors.As(err, &full) {
			writeError(w, http.StatusServiceUnavailable, "Ingestion queue full or worker unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create job: %v", err))
		return
	}

	slog.Info("reference ingestion job enqueued",
		"job_id", jobID.String(),
		"document_id", doc.ID.String(),
		"storage_path", req.StoragePath)
	writeJSON(w, http.StatusAccepted, ingestResponse{
		DocumentID: doc.ID.String(),
		JobID:      jobID.String(),
		Message:    "Document ingestion started",
	})
}

// jobStatusResponse is the wire form of a job row.
type jobStatusResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	DocumentID   *string `json:"document_id,omitempty"`
	JobType      string  `json:"job_type"`
	ErrorMessage string  `json:"error_message,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// handleJobStatus serves GET /api/v1/jobs/{id}.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	jobID, err := domain.JobIDFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job ID: "+raw)
		return
	}

	job, err := s.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found: "+raw)
			return
		}
		slog.Error("job status lookup failed", "error", err, "job_id", raw)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to fetch job: %v", err))
		return
	}

	resp := jobStatusResponse{
		ID:           job.ID.String(),
		Status:       job.Status.String(),
		JobType:      job.JobType,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
	if job.DocumentID != nil {
		id := job.DocumentID.String()
		resp.DocumentID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

// queueFullError distinguishes a full or closed queue from job creation
// failures so handlers can answer 503 instead of 500.
type queueFullError struct{ err error }

func (e *queueFullError) Error() string { return e.err.Error() }
func (e *queueFullError) Unwrap() error { return e.err }

// createAndEnqueue persists the Queued job row and hands the message to the
// worker queue without blocking.
func (s *Server) createAndEnqueue(ctx context.Context, doc domain.Document, path domain.StoragePath, deleteAfter bool) (domain.JobID, error) {
	job := domain.NewJob(doc.ID, "document_ingestion")
	if err := s.jobs.Create(ctx, job); err != nil {
		return domain.JobID{}, fmt.Errorf("create job: %w", err)
	}

	msg := ingest.Message{
		JobID:                 job.ID,
		Document:              doc,
		StoragePath:           path,
		DeleteAfterProcessing: deleteAfter,
	}
	if err := s.queue.Enqueue(msg); err != nil {
		if errors.Is(err, ingest.ErrQueueFull) || errors.Is(err, ingest.ErrQueueClosed) {
			return domain.JobID{}, &queueFullError{err: err}
		}
		return domain.JobID{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job.ID, nil
}

// cleanupStaged removes a staged object after a post-store failure. Best
// effort; the request error already describes the real failure.
func (s *Server) cleanupStaged(path domain.StoragePath) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.stage.Delete(ctx, path); err != nil && !errors.Is(err, staging.ErrNotFound) {
		slog.Warn("cleanup of staged upload failed", "error", err, "path", path.String())
	}
}
