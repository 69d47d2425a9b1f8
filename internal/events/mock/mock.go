// Package mock provides a recording test double for the events.Publisher
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sandakan/internal/events"
	"github.com/MrWong99/sandakan/pkg/domain"
)

// Event records a single published status change.
type Event struct {
	JobID      domain.JobID
	DocumentID *domain.DocumentID
	Status     domain.JobStatus
	Error      string
}

// Publisher is a mock implementation of events.Publisher.
type Publisher struct {
	mu sync.Mutex

	// Events records every published status change in order.
	Events []Event
}

// PublishJobStatus records the event.
func (p *Publisher) PublishJobStatus(_ context.Context, jobID domain.JobID, documentID *domain.DocumentID, status domain.JobStatus, errorMessage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, Event{
		JobID:      jobID,
		DocumentID: documentID,
		Status:     status,
		Error:      errorMessage,
	})
}

// Statuses returns just the status sequence of all recorded events.
func (p *Publisher) Statuses() []domain.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.JobStatus, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.Status
	}
	return out
}

// Reset clears all recorded events. Thread-safe.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = nil
}

// Ensure Publisher implements events.Publisher at compile time.
var _ events.Publisher = (*Publisher)(nil)
