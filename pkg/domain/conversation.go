package domain

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r MessageRole) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single turn within a conversation.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// NewMessage creates a Message with a fresh id.
func NewMessage(conversationID ConversationID, role MessageRole, content string) Message {
	return Message{
		ID:             NewMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// Conversation owns an ordered sequence of messages. Appending a message
// bumps UpdatedAt.
type Conversation struct {
	ID        ConversationID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewConversation creates an empty Conversation with a fresh id.
func NewConversation() Conversation {
	now := time.Now().UTC()
	return Conversation{ID: NewConversationID(), CreatedAt: now, UpdatedAt: now}
}
