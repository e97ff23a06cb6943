package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is returned for frames that are not valid events: bad JSON, an
// unknown discriminator, or a missing required field.
var ErrDecode = errors.New("decode event")

// envelope captures every field any variant may carry. Pointers distinguish a
// missing field from an empty one; unknown fields are ignored.
type envelope struct {
	Type      string  `json:"type"`
	Text      *string `json:"text"`
	Username  *string `json:"username"`
	Timestamp *int64  `json:"timestamp"`
}

type messageWire struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

type textWire struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usernameWire struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// Decode parses a server-bound frame.
func Decode(data []byte) (ServerBound, error) {
	env, err := unmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeMessage:
		if env.Text == nil {
			return nil, missingField(env.Type, "text")
		}
		return InboundMessage{Text: *env.Text}, nil
	case TypeSetUsername:
		if env.Username == nil {
			return nil, missingField(env.Type, "username")
		}
		return SetUsername{Username: *env.Username}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrDecode, env.Type)
	}
}

// Encode serializes a client-bound event. It succeeds for every ClientBound variant.
func Encode(ev ClientBound) ([]byte, error) {
	switch e := ev.(type) {
	case OutboundMessage:
		return json.Marshal(messageWire{Type: TypeMessage, Text: e.Text, Username: e.Username, Timestamp: e.Timestamp})
	case ClientJoin:
		return json.Marshal(usernameWire{Type: TypeClientJoin, Username: e.Username})
	case ClientLeave:
		return json.Marshal(usernameWire{Type: TypeClientLeave, Username: e.Username})
	case ClientTyping:
		return json.Marshal(usernameWire{Type: TypeClientTyping, Username: e.Username})
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}
}

// DecodeClient parses a client-bound frame. Clients and the relay use it.
func DecodeClient(data []byte) (ClientBound, error) {
	env, err := unmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeMessage:
		switch {
		case env.Text == nil:
			return nil, missingField(env.Type, "text")
		case env.Username == nil:
			return nil, missingField(env.Type, "username")
		case env.Timestamp == nil:
			return nil, missingField(env.Type, "timestamp")
		}
		return OutboundMessage{Text: *env.Text, Username: *env.Username, Timestamp: *env.Timestamp}, nil
	case TypeClientJoin, TypeClientLeave, TypeClientTyping:
		if env.Username == nil {
			return nil, missingField(env.Type, "username")
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrDecode, env.Type)
	}

	switch env.Type {
	case TypeClientJoin:
		return ClientJoin{Username: *env.Username}, nil
	case TypeClientLeave:
		return ClientLeave{Username: *env.Username}, nil
	default:
		return ClientTyping{Username: *env.Username}, nil
	}
}

// EncodeServer serializes a server-bound event. Clients and the relay use it.
func EncodeServer(ev ServerBound) ([]byte, error) {
	switch e := ev.(type) {
	case InboundMessage:
		return json.Marshal(textWire{Type: TypeMessage, Text: e.Text})
	case SetUsername:
		return json.Marshal(usernameWire{Type: TypeSetUsername, Username: e.Username})
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}
}

func unmarshalEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrDecode)
	}
	return env, nil
}

func missingField(typ, field string) error {
	return fmt.Errorf("%w: %s requires %q", ErrDecode, typ, field)
}
