// Package store defines the repositories for jobs and conversations plus
// their PostgreSQL implementations.
package store

import (
	"context"
	"errors"

	"github.com/MrWong99/sandakan/pkg/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidTransition is returned by UpdateStatus when the requested
	// status change would move a job backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("store: invalid job status transition")

	// ErrMissingErrorMessage is returned by UpdateStatus when a job is
	// failed without an error message.
	ErrMissingErrorMessage = errors.New("store: failed status requires an error message")
)

// JobRepository persists ingestion jobs.
// Implementations must be safe for concurrent use.
type JobRepository interface {
	// Create inserts a new job row.
	Create(ctx context.Context, job domain.Job) error

	// GetByID fetches a job. Returns ErrNotFound when no such job exists.
	GetByID(ctx context.Context, id domain.JobID) (domain.Job, error)

	// UpdateStatus advances a job along the pipeline. Transitions are
	// strictly forward; terminal jobs reject every update. Failing a job
	// requires errorMessage to be non-empty, completing a job clears it.
	UpdateStatus(ctx context.Context, id domain.JobID, status domain.JobStatus, errorMessage string) error

	// ListByStatus returns all jobs currently in the given status, newest
	// first.
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error)
}

// ConversationRepository persists chat conversations and their messages.
// Implementations must be safe for concurrent use.
type ConversationRepository interface {
	// CreateConversation inserts a new conversation row.
	CreateConversation(ctx context.Context, conv domain.Conversation) error

	// GetConversation fetches a conversation. Returns ErrNotFound when no
	// such conversation exists.
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)

	// AppendMessage adds a message to its conversation and bumps the
	// conversation's UpdatedAt. The conversation is created on first use.
	AppendMessage(ctx context.Context, msg domain.Message) error

	// GetMessages returns up to limit messages of a conversation in
	// chronological order.
	GetMessages(ctx context.Context, conversationID domain.ConversationID, limit int) ([]domain.Message, error)
}
