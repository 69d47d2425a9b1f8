package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/sandakan/pkg/domain"
)

const (
	connectRetries      = 5
	connectInitialDelay = 500 * time.Millisecond
)

// Connect opens a pgx pool against dsn. Transient startup failures are
// retried up to 5 times with a doubling delay starting at 500 ms so the
// service survives the database coming up after it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	delay := connectInitialDelay
	for attempt := 0; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				slog.Info("postgres connection pool established")
				return pool, nil
			}
			pool.Close()
		}
		if attempt >= connectRetries {
			return nil, fmt.Errorf("store: connect: %w", err)
		}
		slog.Warn("postgres connection failed, retrying",
			"error", err,
			"retries_left", connectRetries-attempt-1,
			"delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("store: connect: %w", ctx.Err())
		}
		delay *= 2
	}
}

// Migrate creates the job and conversation tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id            UUID PRIMARY KEY,
			document_id   UUID,
			status        TEXT NOT NULL,
			job_type      TEXT NOT NULL DEFAULT '',
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id         UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx
			ON messages (conversation_id, created_at)`,
	}
	for _, q := range ddl {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Ensure the Postgres repositories implement their interfaces.
var (
	_ JobRepository          = (*PostgresJobRepository)(nil)
	_ ConversationRepository = (*PostgresConversationRepository)(nil)
)

// PostgresJobRepository implements JobRepository on a jobs table.
// All methods are safe for concurrent use.
type PostgresJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresJobRepository wraps an existing pool.
func NewPostgresJobRepository(pool *pgxpool.Pool) *PostgresJobRepository {
	return &PostgresJobRepository{pool: pool}
}

// Create implements JobRepository.
func (r *PostgresJobRepository) Create(ctx context.Context, job domain.Job) error {
	var docID *string
	if job.DocumentID != nil {
		s := job.DocumentID.String()
		docID = &s
	}
	var errMsg *string
	if job.ErrorMessage != "" {
		errMsg = &job.ErrorMessage
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, document_id, status, job_type, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID.String(), docID, job.Status.String(), job.JobType, errMsg,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("job repository: create: %w", err)
	}
	return nil
}

// GetByID implements JobRepository.
func (r *PostgresJobRepository) GetByID(ctx context.Context, id domain.JobID) (domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id::text, document_id::text, status, job_type, error_message, created_at, updated_at
		FROM jobs WHERE id = $1`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("job repository: get: %w", err)
	}
	return job, nil
}

// UpdateStatus implements JobRepository. The current status is locked and
// checked inside a transaction so concurrent updates cannot move a job
// backwards.
func (r *PostgresJobRepository) UpdateStatus(ctx context.Context, id domain.JobID, status domain.JobStatus, errorMessage string) error {
	if status == domain.JobFailed && errorMessage == "" {
		return ErrMissingErrorMessage
	}
	if status == domain.JobCompleted {
		errorMessage = ""
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id.String()).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: job %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		currentStatus, err := domain.ParseJobStatus(current)
		if err != nil {
			return err
		}
		if !currentStatus.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
		}

		var errMsg *string
		if errorMessage != "" {
			errMsg = &errorMessage
		}
		_, err = tx.Exec(ctx, `
			UPDATE jobs SET status = $1, error_message = $2, updated_at = $3
			WHERE id = $4`,
			status.String(), errMsg, time.Now().UTC(), id.String())
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("job repository: update status: %w", err)
	}
	return nil
}

// ListByStatus implements JobRepository.
func (r *PostgresJobRepository) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, document_id::text, status, job_type, error_message, created_at, updated_at
		FROM jobs WHERE status = $1
		ORDER BY created_at DESC`, status.String())
	if err != nil {
		return nil, fmt.Errorf("job repository: list by status: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("job repository: scan rows: %w", err)
	}
	return jobs, nil
}

// scanJob reads one jobs row regardless of whether it came from QueryRow or
// CollectRows.
func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		idStr  string
		docStr *string
		status string
		job    domain.Job
		errMsg *string
	)
	if err := row.Scan(&idStr, &docStr, &status, &job.JobType, &errMsg,
		&job.CreatedAt, &job.UpdatedAt); err != nil {
		return domain.Job{}, err
	}

	id, err := domain.JobIDFromString(idStr)
	if err != nil {
		return domain.Job{}, err
	}
	job.ID = id

	if docStr != nil {
		docID, err := domain.DocumentIDFromString(*docStr)
		if err != nil {
			return domain.Job{}, err
		}
		job.DocumentID = &docID
	}

	job.Status, err = domain.ParseJobStatus(status)
	if err != nil {
		return domain.Job{}, err
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	return job, nil
}

// PostgresConversationRepository implements ConversationRepository on the
// conversations and messages tables. All methods are safe for concurrent use.
type PostgresConversationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresConversationRepository wraps an existing pool.
func NewPostgresConversationRepository(pool *pgxpool.Pool) *PostgresConversationRepository {
	return &PostgresConversationRepository{pool: pool}
}

// CreateConversation implements ConversationRepository.
func (r *PostgresConversationRepository) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, created_at, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		conv.ID.String(), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("conversation repository: create: %w", err)
	}
	return nil
}

// GetConversation implements ConversationRepository.
func (r *PostgresConversationRepository) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var (
		idStr string
		conv  domain.Conversation
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, created_at, updated_at
		FROM conversations WHERE id = $1`, id.String()).
		Scan(&idStr, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("conversation repository: get: %w", err)
	}
	conv.ID, err = domain.ConversationIDFromString(idStr)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("conversation repository: get: %w", err)
	}
	return conv, nil
}

// AppendMessage implements ConversationRepository. The owning conversation
// row is created on first use so callers can persist turns without a
// separate create call.
func (r *PostgresConversationRepository) AppendMessage(ctx context.Context, msg domain.Message) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, created_at, updated_at)
			VALUES ($1, $2, $2)
			ON CONFLICT (id) DO UPDATE SET updated_at = $2`,
			msg.ConversationID.String(), now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			msg.ID.String(), msg.ConversationID.String(), string(msg.Role),
			msg.Content, msg.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("conversation repository: append message: %w", err)
	}
	return nil
}

// GetMessages implements ConversationRepository.
func (r *PostgresConversationRepository) GetMessages(ctx context.Context, conversationID domain.ConversationID, limit int) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, conversation_id::text, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at
		LIMIT $2`, conversationID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("conversation repository: get messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var (
			idStr   string
			convStr string
			role    string
			msg     domain.Message
		)
		if err := row.Scan(&idStr, &convStr, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return domain.Message{}, err
		}
		id, err := domain.MessageIDFromString(idStr)
		if err != nil {
			return domain.Message{}, err
		}
		msg.ID = id
		convID, err := domain.ConversationIDFromString(convStr)
		if err != nil {
			return domain.Message{}, err
		}
		msg.ConversationID = convID
		msg.Role = domain.MessageRole(role)
		return msg, nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation repository: scan rows: %w", err)
	}
	return msgs, nil
}
