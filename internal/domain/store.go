package domain

import (
	"context"
	"time"
)

// StreamingMessage is the transient in-flight assistant message. It is
// created when a stream starts, grown token by token, and handed to the
// persistence sink once it reaches a terminal state.
type StreamingMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Sender         string    `json:"sender"` // always RoleAssistant for this subsystem
	Text           string    `json:"text"`
	Streaming      bool      `json:"streaming"`
	Incomplete     bool      `json:"incomplete"`
	Error          string    `json:"error,omitempty"`
	Model          string    `json:"model,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageStore is the persistence sink for finalized streaming messages.
// The streaming core never blocks on the sink's durability guarantees; a
// save happens once, after the terminal event.
type MessageStore interface {
	// SaveMessage stores a finalized (complete or interrupted) message.
	SaveMessage(ctx context.Context, msg StreamingMessage) error
	// History returns the most recent messages of a conversation, oldest first.
	History(ctx context.Context, conversationID string, limit int) ([]Message, error)
	Close() error
}
