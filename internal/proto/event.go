// Package proto defines the tagged JSON events exchanged over a chat connection.
//
// Every frame is a JSON object whose "type" field names the variant. Server-bound
// variants are Message{text} and SetUsername{username}; client-bound variants are
// Message{text,username,timestamp}, ClientJoin, ClientLeave and ClientTyping.
package proto

// Event discriminators carried in the "type" field.
const (
	TypeMessage      = "Message"
	TypeSetUsername  = "SetUsername"
	TypeClientJoin   = "ClientJoin"
	TypeClientLeave  = "ClientLeave"
	TypeClientTyping = "ClientTyping"
)

// ServerBound is an event sent by a client to the server.
type ServerBound interface {
	Type() string
	serverBound()
}

// ClientBound is an event sent by the server to clients.
type ClientBound interface {
	Type() string
	clientBound()
}

// InboundMessage asks the server to broadcast text.
type InboundMessage struct {
	Text string
}

// SetUsername asks the server to rename the sender.
type SetUsername struct {
	Username string
}

// OutboundMessage is a chat message as delivered to every client.
type OutboundMessage struct {
	Text     string
	Username string
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64
}

// ClientJoin announces a new session.
type ClientJoin struct {
	Username string
}

// ClientLeave announces a closed session.
type ClientLeave struct {
	Username string
}

// ClientTyping is reserved by the protocol; the server never emits it.
type ClientTyping struct {
	Username string
}

func (InboundMessage) Type() string  { return TypeMessage }
func (SetUsername) Type() string     { return TypeSetUsername }
func (OutboundMessage) Type() string { return TypeMessage }
func (ClientJoin) Type() string      { return TypeClientJoin }
func (ClientLeave) Type() string     { return TypeClientLeave }
func (ClientTyping) Type() string    { return TypeClientTyping }

func (InboundMessage) serverBound() {}
func (SetUsername) serverBound()    {}

func (OutboundMessage) clientBound() {}
func (ClientJoin) clientBound()      {}
func (ClientLeave) clientBound()     {}
func (ClientTyping) clientBound()    {}
