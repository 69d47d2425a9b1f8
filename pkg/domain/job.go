package domain

import (
	"fmt"
	"time"
)

// JobStatus tracks an ingestion job through its pipeline stages.
type JobStatus string

const (
	JobQueued          JobStatus = "QUEUED"
	JobProcessing      JobStatus = "PROCESSING"
	JobMediaExtraction JobStatus = "MEDIA_EXTRACTION"
	JobTranscribing    JobStatus = "TRANSCRIBING"
	JobEmbedding       JobStatus = "EMBEDDING"
	JobCompleted       JobStatus = "COMPLETED"
	JobFailed          JobStatus = "FAILED"
)

// statusRank orders statuses along the pipeline. Completed and Failed share
// the terminal rank.
var statusRank = map[JobStatus]int{
	JobQueued:          0,
	JobProcessing:      1,
	JobMediaExtraction: 2,
	JobTranscribing:    3,
	JobEmbedding:       4,
	JobCompleted:       5,
	JobFailed:          5,
}

// ParseJobStatus converts a canonical status string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("domain: unknown job status %q", s)
	}
	return st, nil
}

// String returns the canonical status string.
func (s JobStatus) String() string { return string(s) }

// Terminal reports whether the status is Completed or Failed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo reports whether moving from s to next is legal.
// Transitions are strictly forward; terminal statuses admit none.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Job records the state of one asynchronous ingestion run.
type Job struct {
	ID           JobID
	DocumentID   *DocumentID
	Status       JobStatus
	JobType      string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewJob creates a Queued job for the given document.
func NewJob(documentID DocumentID, jobType string) Job {
	now := time.Now().UTC()
	return Job{
		ID:         NewJobID(),
		DocumentID: &documentID,
		Status:     JobQueued,
		JobType:    jobType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
