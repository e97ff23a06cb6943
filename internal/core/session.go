package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// CloseCode is a close status sent to the peer, numbered as in RFC 6455.
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseUnsupportedData CloseCode = 1003
	ClosePolicyViolation CloseCode = 1008
	CloseInternalError   CloseCode = 1011
)

// Outbound is the write half of a connection. A session owns it exclusively.
type Outbound interface {
	// Send writes one text frame.
	Send(ctx context.Context, payload []byte) error
	// Close sends a close frame and releases the connection. It may be
	// called while a Send is in progress and must make that Send return.
	Close(code CloseCode, reason string) error
}

// Session is the server-side state of one live connection.
type Session struct {
	id string

	// mu guards username and serializes sends on out.
	mu       sync.Mutex
	username string
	out      Outbound

	state   atomic.Int32
	closing atomic.Bool
}

func newSession(id, username string, out Outbound) *Session {
	s := &Session{id: id, username: username, out: out}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the connection identity the session was registered under.
func (s *Session) ID() string {
	return s.id
}

// Username returns the current display name.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// State returns the lifecycle state of the session's connection.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) rename(username string) {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
}

func (s *Session) send(ctx context.Context, payload []byte) error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// close may have started while we waited for the lock.
	if s.closing.Load() {
		return ErrSessionClosed
	}
	return s.out.Send(ctx, payload)
}

// close moves the session to Closing and sends the close frame. Only the first
// call does anything. The close handshake can take as long as the peer lets
// it, so it runs without the session lock; Outbound allows Close to race a Send.
func (s *Session) close(code CloseCode, reason string) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.advance(StateClosing)
	return s.out.Close(code, reason)
}

// advance moves the state forward; states never go back.
func (s *Session) advance(to State) {
	for {
		cur := s.state.Load()
		if cur >= int32(to) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}
