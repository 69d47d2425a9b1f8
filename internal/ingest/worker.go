package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/sandakan/internal/events"
	"github.com/MrWong99/sandakan/internal/observe"
	"github.com/MrWong99/sandakan/internal/store"
	"github.com/MrWong99/sandakan/pkg/domain"
	"github.com/MrWong99/sandakan/pkg/provider/embeddings"
	"github.com/MrWong99/sandakan/pkg/provider/extract"
	"github.com/MrWong99/sandakan/pkg/provider/transcribe"
	"github.com/MrWong99/sandakan/pkg/splitter"
	"github.com/MrWong99/sandakan/pkg/staging"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
)

// Worker is the single consumer of the ingestion queue. It runs each job
// through fetch, extract or transcribe, split, embed and upsert, advancing
// the job's status at every stage. Failures mark the job Failed with a
// stage-tagged message; the worker then moves on to the next message.
type Worker struct {
	queue       *Queue
	stage       staging.Store
	loader      extract.FileLoader
	transcriber transcribe.Engine
	split       splitter.Splitter
	embedder    embeddings.Provider
	vectors     vectorstore.Store
	jobs        store.JobRepository
	publisher   events.Publisher
	metrics     *observe.Metrics
}

// NewWorker wires the pipeline dependencies together. A nil metrics falls
// back to the package-level default instruments.
func NewWorker(
	queue *Queue,
	stage staging.Store,
	loader extract.FileLoader,
	transcriber transcribe.Engine,
	split splitter.Splitter,
	embedder embeddings.Provider,
	vectors vectorstore.Store,
	jobs store.JobRepository,
	publisher events.Publisher,
	metrics *observe.Metrics,
) *Worker {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Worker{
		queue:       queue,
		stage:       stage,
		loader:      loader,
		transcriber: transcriber,
		split:       split,
		embedder:    embedder,
		vectors:     vectors,
		jobs:        jobs,
		publisher:   publisher,
		metrics:     metrics,
	}
}

// Run consumes the queue until it is closed or ctx is cancelled. Jobs are
// processed strictly one at a time.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("ingestion worker started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("ingestion worker stopped", "reason", ctx.Err())
			return
		case msg, ok := <-w.queue.Messages():
			if !ok {
				slog.Info("ingestion worker stopped: queue closed")
				return
			}
			w.processJob(ctx, msg)
		}
	}
}

// processJob runs one message through the pipeline and records the terminal
// status.
func (w *Worker) processJob(ctx context.Context, msg Message) {
	log := slog.With(
		"job_id", msg.JobID.String(),
		"document_id", msg.Document.ID.String(),
		"filename", msg.Document.Filename)

	start := time.Now()
	if err := w.updateStatus(ctx, msg, domain.JobProcessing, ""); err != nil {
		log.Error("job status update failed", "error", err)
		return
	}

	pipelineErr := w.runPipeline(ctx, msg)

	if msg.DeleteAfterProcessing {
		if err := w.stage.Delete(ctx, msg.StoragePath); err != nil {
			log.Warn("staged object cleanup failed",
				"error", err, "path", msg.StoragePath.String())
		}
	}

	if pipelineErr != nil {
		log.Error("ingestion job failed", "error", pipelineErr)
		if err := w.updateStatus(ctx, msg, domain.JobFailed, pipelineErr.Error()); err != nil {
			log.Error("job status update failed", "error", err)
		}
		w.metrics.IngestJobDuration.Record(ctx, time.Since(start).Seconds())
		w.metrics.RecordIngestJob(ctx, domain.JobFailed.String())
		return
	}
	if err := w.updateStatus(ctx, msg, domain.JobCompleted, ""); err != nil {
		log.Error("job status update failed", "error", err)
		return
	}
	w.metrics.IngestJobDuration.Record(ctx, time.Since(start).Seconds())
	w.metrics.RecordIngestJob(ctx, domain.JobCompleted.String())
	log.Info("ingestion completed")
}

// runPipeline executes the stages after Processing. Returned errors carry
// the stage tag that ends up on the failed job.
func (w *Worker) runPipeline(ctx context.Context, msg Message) error {
	data, err := w.stage.Fetch(ctx, msg.StoragePath)
	if err != nil {
		return fmt.Errorf("staging store: %w", err)
	}

	var text string
	if msg.Document.ContentType.IsMedia() {
		if err := w.updateStatus(ctx, msg, domain.JobMediaExtraction, ""); err != nil {
			return fmt.Errorf("repository: %w", err)
		}
		if err := w.updateStatus(ctx, msg, domain.JobTranscribing, ""); err != nil {
			return fmt.Errorf("repository: %w", err)
		}
		stageStart := time.Now()
		text, err = w.transcriber.Transcribe(ctx, data)
		w.metrics.TranscriptionDuration.Record(ctx, time.Since(stageStart).Seconds())
		if err != nil {
			w.metrics.RecordProviderRequest(ctx, "transcription", "error")
			w.metrics.RecordProviderError(ctx, "transcription")
			return fmt.Errorf("transcription: %w", err)
		}
		w.metrics.RecordProviderRequest(ctx, "transcription", "ok")
	} else {
		stageStart := time.Now()
		text, err = w.loader.ExtractText(ctx, data, msg.Document)
		w.metrics.ExtractionDuration.Record(ctx, time.Since(stageStart).Seconds())
		if err != nil {
			w.metrics.RecordProviderRequest(ctx, "extraction", "error")
			w.metrics.RecordProviderError(ctx, "extraction")
			return fmt.Errorf("file loading: %w", err)
		}
		w.metrics.RecordProviderRequest(ctx, "extraction", "ok")
	}

	if err := w.updateStatus(ctx, msg, domain.JobEmbedding, ""); err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	chunks, err := w.split.Split(ctx, text, msg.Document.ID)
	if err != nil {
		return fmt.Errorf("text splitting: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embedStart := time.Now()
	embedded, err := w.embedder.EmbedBatch(ctx, texts)
	w.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	if err != nil {
		w.metrics.RecordProviderRequest(ctx, "embeddings", "error")
		w.metrics.RecordProviderError(ctx, "embeddings")
		return fmt.Errorf("embedding: %w", err)
	}
	w.metrics.RecordProviderRequest(ctx, "embeddings", "ok")

	if err := w.vectors.Upsert(ctx, chunks, embedded); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	w.metrics.ChunksUpserted.Add(ctx, int64(len(chunks)))
	return nil
}

// updateStatus persists and publishes one status transition.
func (w *Worker) updateStatus(ctx context.Context, msg Message, status domain.JobStatus, errorMessage string) error {
	if err := w.jobs.UpdateStatus(ctx, msg.JobID, status, errorMessage); err != nil {
		return err
	}
	docID := msg.Document.ID
	w.publisher.PublishJobStatus(ctx, msg.JobID, &docID, status, errorMessage)
	return nil
}
