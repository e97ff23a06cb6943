package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeServerBound(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ServerBound
	}{
		{"message", `{"type":"Message","text":"hi"}`, InboundMessage{Text: "hi"}},
		{"empty text", `{"type":"Message","text":""}`, InboundMessage{Text: ""}},
		{"set username", `{"type":"SetUsername","username":"alice"}`, SetUsername{Username: "alice"}},
		{"extra fields ignored", `{"type":"Message","text":"hi","username":"spoof","timestamp":1}`, InboundMessage{Text: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsInvalidFrames(t *testing.T) {
	inputs := map[string]string{
		"not json":          `hello`,
		"not an object":     `["Message"]`,
		"missing type":      `{"text":"hi"}`,
		"unknown type":      `{"type":"Shout","text":"hi"}`,
		"client-bound type": `{"type":"ClientJoin","username":"x"}`,
		"missing text":      `{"type":"Message"}`,
		"missing username":  `{"type":"SetUsername"}`,
		"wrong field type":  `{"type":"Message","text":42}`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestEncodeClientBoundWireShape(t *testing.T) {
	tests := []struct {
		event ClientBound
		want  string
	}{
		{OutboundMessage{Text: "hi", Username: "userAB12", Timestamp: 1700000000123},
			`{"type":"Message","text":"hi","username":"userAB12","timestamp":1700000000123}`},
		{ClientJoin{Username: "userBBBB"}, `{"type":"ClientJoin","username":"userBBBB"}`},
		{ClientLeave{Username: "userAAAA"}, `{"type":"ClientLeave","username":"userAAAA"}`},
		{ClientTyping{Username: "bob"}, `{"type":"ClientTyping","username":"bob"}`},
	}
	for _, tt := range tests {
		t.Run(tt.event.Type(), func(t *testing.T) {
			got, err := Encode(tt.event)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))

			back, err := DecodeClient(got)
			require.NoError(t, err)
			require.Equal(t, tt.event, back)
		})
	}
}

func TestDecodeClientRequiresFields(t *testing.T) {
	for _, in := range []string{
		`{"type":"Message","text":"hi","username":"u"}`,
		`{"type":"Message","username":"u","timestamp":1}`,
		`{"type":"ClientLeave"}`,
		`{"type":"SetUsername","username":"u"}`,
	} {
		_, err := DecodeClient([]byte(in))
		require.ErrorIs(t, err, ErrDecode, in)
	}
}

func TestEncodeServer(t *testing.T) {
	data, err := EncodeServer(InboundMessage{Text: "hello"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"Message","text":"hello"}`, string(data))

	data, err = EncodeServer(SetUsername{Username: "carol"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"SetUsername","username":"carol"}`, string(data))

	ev, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, SetUsername{Username: "carol"}, ev)
}
