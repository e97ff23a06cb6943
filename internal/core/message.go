package core

//go:generate mockgen -source=message.go -destination=mocks/mock_message_log.go -package=mocks

import (
	"context"
	"time"

	"github.com/vovakirdan/chatcast/internal/proto"
	"github.com/vovakirdan/chatcast/internal/store"
)

// ChatMessage is an accepted message. The username is a snapshot taken when the
// message was accepted; later renames do not affect it.
type ChatMessage struct {
	Text     string
	Username string
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64
}

// NewChatMessage stamps text with the sender's current name and the time of acceptance.
func NewChatMessage(text, username string, now time.Time) ChatMessage {
	return ChatMessage{Text: text, Username: username, Timestamp: now.UnixMilli()}
}

// Event is the client-bound form of the message.
func (m ChatMessage) Event() proto.OutboundMessage {
	return proto.OutboundMessage{Text: m.Text, Username: m.Username, Timestamp: m.Timestamp}
}

// Record is the form appended to the message log.
func (m ChatMessage) Record() *store.Message {
	return &store.Message{Text: m.Text, Username: m.Username, Timestamp: m.Timestamp}
}

// MessageLog is the append-only sink for accepted messages.
type MessageLog interface {
	AppendMessage(ctx context.Context, msg *store.Message) error
}
