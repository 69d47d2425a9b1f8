// Package mock provides in-memory test doubles for the store repositories.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/sandakan/internal/store"
	"github.com/MrWong99/sandakan/pkg/domain"
)

// Ensure the mocks implement the repository interfaces.
var (
	_ store.JobRepository          = (*JobRepository)(nil)
	_ store.ConversationRepository = (*ConversationRepository)(nil)
)

// JobRepository is an in-memory implementation of store.JobRepository that
// enforces the same transition rules as the Postgres one. The zero value is
// ready to use.
type JobRepository struct {
	mu   sync.Mutex
	jobs map[domain.JobID]domain.Job

	// CreateErr, GetErr, UpdateErr and ListErr, if non-nil, are returned
	// by the respective methods before touching the in-memory state.
	CreateErr error
	GetErr    error
	UpdateErr error
	ListErr   error

	// StatusHistory records, per job, every status the job was moved
	// through including the initial one from Create.
	StatusHistory map[domain.JobID][]domain.JobStatus
}

// Create implements store.JobRepository.
func (r *JobRepository) Create(_ context.Context, job domain.Job) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = make(map[domain.JobID]domain.Job)
	}
	if r.StatusHistory == nil {
		r.StatusHistory = make(map[domain.JobID][]domain.JobStatus)
	}
	r.jobs[job.ID] = job
	r.StatusHistory[job.ID] = append(r.StatusHistory[job.ID], job.Status)
	return nil
}

// GetByID implements store.JobRepository.
func (r *JobRepository) GetByID(_ context.Context, id domain.JobID) (domain.Job, error) {
	if r.GetErr != nil {
		return domain.Job{}, r.GetErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %s", store.ErrNotFound, id)
	}
	return job, nil
}

// UpdateStatus implements store.JobRepository.
func (r *JobRepository) UpdateStatus(_ context.Context, id domain.JobID, status domain.JobStatus, errorMessage string) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	if status == domain.JobFailed && errorMessage == "" {
		return store.ErrMissingErrorMessage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", store.ErrNotFound, id)
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, job.Status, status)
	}
	job.Status = status
	if status == domain.JobCompleted {
		job.ErrorMessage = ""
	} else {
		job.ErrorMessage = errorMessage
	}
	job.UpdatedAt = time.Now().UTC()
	r.jobs[id] = job
	r.StatusHistory[id] = append(r.StatusHistory[id], status)
	return nil
}

// ListByStatus implements store.JobRepository.
func (r *JobRepository) ListByStatus(_ context.Context, status domain.JobStatus) ([]domain.Job, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []domain.Job
	for _, job := range r.jobs {
		if job.Status == status {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

// ConversationRepository is an in-memory implementation of
// store.ConversationRepository. The zero value is ready to use.
type ConversationRepository struct {
	mu            sync.Mutex
	conversations map[domain.ConversationID]domain.Conversation
	messages      map[domain.ConversationID][]domain.Message

	// CreateErr, GetErr, AppendErr and MessagesErr, if non-nil, are
	// returned by the respective methods.
	CreateErr   error
	GetErr      error
	AppendErr   error
	MessagesErr error
}

// CreateConversation implements store.ConversationRepository.
func (r *ConversationRepository) CreateConversation(_ context.Context, conv domain.Conversation) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conversations == nil {
		r.conversations = make(map[domain.ConversationID]domain.Conversation)
	}
	if _, exists := r.conversations[conv.ID]; !exists {
		r.conversations[conv.ID] = conv
	}
	return nil
}

// GetConversation implements store.ConversationRepository.
func (r *ConversationRepository) GetConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if r.GetErr != nil {
		return domain.Conversation{}, r.GetErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", store.ErrNotFound, id)
	}
	return conv, nil
}

// AppendMessage implements store.ConversationRepository.
func (r *ConversationRepository) AppendMessage(_ context.Context, msg domain.Message) error {
	if r.AppendErr != nil {
		return r.AppendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conversations == nil {
		r.conversations = make(map[domain.ConversationID]domain.Conversation)
	}
	if r.messages == nil {
		r.messages = make(map[domain.ConversationID][]domain.Message)
	}
	now := time.Now().UTC()
	conv, ok := r.conversations[msg.ConversationID]
	if !ok {
		conv = domain.Conversation{ID: msg.ConversationID, CreatedAt: now}
	}
	conv.UpdatedAt = now
	r.conversations[msg.ConversationID] = conv
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	return nil
}

// GetMessages implements store.ConversationRepository.
func (r *ConversationRepository) GetMessages(_ context.Context, conversationID domain.ConversationID, limit int) ([]domain.Message, error) {
	if r.MessagesErr != nil {
		return nil, r.MessagesErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
