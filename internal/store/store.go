package store

import (
	"context"
	"time"
)

// Message represents a persisted channel message.
type Message struct {
	ID        int64
	MessageID string // wire identifier assigned by the hub
	Channel   string
	Name      string
	ClientID  string
	Data      []byte
	CreatedAt time.Time
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message to storage.
	SaveMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns up to limit of the newest messages of a channel, oldest first.
	RecentMessages(ctx context.Context, channel string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
