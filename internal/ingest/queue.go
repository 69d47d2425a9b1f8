// Package ingest contains the bounded ingestion queue and the background
// worker that turns staged uploads into embedded chunks.
package ingest

import (
	"errors"
	"sync"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// DefaultQueueCapacity bounds the in-process job queue when no capacity is
// configured.
const DefaultQueueCapacity = 32

// ErrQueueFull is returned by Enqueue when the queue cannot accept the
// message without blocking.
var ErrQueueFull = errors.New("ingest: queue full")

// ErrQueueClosed is returned by Enqueue once Close has been called. Handlers
// racing a shutdown get an error instead of a panic on the closed channel.
var ErrQueueClosed = errors.New("ingest: queue closed")

// Message is one unit of work for the worker.
type Message struct {
	JobID                 domain.JobID
	Document              domain.Document
	StoragePath           domain.StoragePath
	DeleteAfterProcessing bool
}

// Queue is the bounded FIFO between the HTTP ingest handlers and the
// worker. The zero value is not usable; construct with NewQueue. A Queue
// may be shared freely across handlers.
type Queue struct {
	ch chan Message

	// mu serialises Enqueue against Close so no send can race the channel
	// close.
	mu     sync.Mutex
	closed bool
}

// NewQueue builds a queue with the given capacity, falling back to
// DefaultQueueCapacity for non-positive values.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// Enqueue offers msg without blocking. Returns ErrQueueFull when the queue
// is at capacity and ErrQueueClosed after Close, so the caller can fail
// fast either way.
func (q *Queue) Enqueue(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Messages exposes the receive side for the worker.
func (q *Queue) Messages() <-chan Message {
	return q.ch
}

// Close stops the queue. Pending messages are still delivered; the worker
// exits once the queue drains. Close is idempotent and safe to call while
// handlers are enqueueing.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
