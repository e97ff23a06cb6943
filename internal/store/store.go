package store

import "context"

// Message is an accepted chat message as recorded in the append-only log.
type Message struct {
	ID       int64
	Text     string
	Username string
	// Timestamp is milliseconds since the Unix epoch, taken when the server accepted the message.
	Timestamp int64
}

// MessageStore handles message persistence. Entries are never updated or deleted.
type MessageStore interface {
	// AppendMessage persists a message and fills in its ID.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit of the newest messages, newest first.
	ListMessages(ctx context.Context, limit int) ([]*Message, error)

	// CountMessages returns the number of logged messages.
	CountMessages(ctx context.Context) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
