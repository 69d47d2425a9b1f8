// Package domain holds the core types shared across the ingestion and
// retrieval pipelines: identifiers, documents, chunks, jobs, conversations,
// and staging paths.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// DocumentID identifies an ingested document.
type DocumentID uuid.UUID

// ChunkID identifies a single chunk within the vector index.
type ChunkID uuid.UUID

// JobID identifies an ingestion job.
type JobID uuid.UUID

// ConversationID identifies a conversation.
type ConversationID uuid.UUID

// MessageID identifies a message within a conversation.
type MessageID uuid.UUID

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewChunkID returns a fresh random ChunkID.
func NewChunkID() ChunkID { return ChunkID(uuid.New()) }

// NewJobID returns a fresh random JobID.
func NewJobID() JobID { return JobID(uuid.New()) }

// NewConversationID returns a fresh random ConversationID.
func NewConversationID() ConversationID { return ConversationID(uuid.New()) }

// NewMessageID returns a fresh random MessageID.
func NewMessageID() MessageID { return MessageID(uuid.New()) }

// String returns the canonical textual form of the id.
func (id DocumentID) String() string { return uuid.UUID(id).String() }

func (id ChunkID) String() string { return uuid.UUID(id).String() }

func (id JobID) String() string { return uuid.UUID(id).String() }

func (id ConversationID) String() string { return uuid.UUID(id).String() }

func (id MessageID) String() string { return uuid.UUID(id).String() }

// DocumentIDFromString parses a canonical uuid string into a DocumentID.
func DocumentIDFromString(s string) (DocumentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, fmt.Errorf("domain: parse document id %q: %w", s, err)
	}
	return DocumentID(u), nil
}

// ChunkIDFromString parses a canonical uuid string into a ChunkID.
func ChunkIDFromString(s string) (ChunkID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChunkID{}, fmt.Errorf("domain: parse chunk id %q: %w", s, err)
	}
	return ChunkID(u), nil
}

// JobIDFromString parses a canonical uuid string into a JobID.
func JobIDFromString(s string) (JobID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return JobID{}, fmt.Errorf("domain: parse job id %q: %w", s, err)
	}
	return JobID(u), nil
}

// ConversationIDFromString parses a canonical uuid string into a ConversationID.
func ConversationIDFromString(s string) (ConversationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ConversationID{}, fmt.Errorf("domain: parse conversation id %q: %w", s, err)
	}
	return ConversationID(u), nil
}

// MessageIDFromString parses a canonical uuid string into a MessageID.
func MessageIDFromString(s string) (MessageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, fmt.Errorf("domain: parse message id %q: %w", s, err)
	}
	return MessageID(u), nil
}
