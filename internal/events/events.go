// Package events publishes job lifecycle notifications so external systems
// can follow ingestion progress without polling the jobs API.
package events

import (
	"context"
	"time"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// JobStatusEvent is the payload published on every job status change.
type JobStatusEvent struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits job status events. Publishing is best effort: the
// ingestion pipeline never fails because an event could not be delivered.
type Publisher interface {
	// PublishJobStatus emits one status change notification.
	PublishJobStatus(ctx context.Context, jobID domain.JobID, documentID *domain.DocumentID, status domain.JobStatus, errorMessage string)
}

// Nop is a Publisher that discards every event.
type Nop struct{}

// PublishJobStatus implements Publisher.
func (Nop) PublishJobStatus(context.Context, domain.JobID, *domain.DocumentID, domain.JobStatus, string) {
}

// Ensure Nop implements Publisher at compile time.
var _ Publisher = Nop{}
