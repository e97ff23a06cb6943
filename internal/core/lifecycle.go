package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcast/internal/proto"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FrameKind classifies a data frame read from a connection. Control frames
// (ping, pong, close) are answered by the transport and never reach the core.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Conn is an accepted duplex connection handed to the core.
type Conn interface {
	Outbound

	// ID identifies the connection, typically its remote address.
	ID() string
	// Read blocks for the next data frame. A graceful close by the peer is
	// reported as an error wrapping ErrPeerClosed.
	Read(ctx context.Context) (FrameKind, []byte, error)
}

// Serve runs one connection from registration until it is closed and removed.
// Closing ctx closes the connection. The returned error is nil for a graceful
// close and otherwise names the cause. Drain waits for running calls.
func (r *Registry) Serve(ctx context.Context, conn Conn) error {
	defer r.trackServe()()

	s, err := r.Register(ctx, conn.ID(), conn)
	if err != nil {
		_ = conn.Close(ClosePolicyViolation, "session already registered")
		return err
	}

	logger := r.logger.With().Str("session_id", s.ID()).Logger()
	logger.Info().Str("username", s.Username()).Msg("session opened")

	cause := r.receive(ctx, s, conn, &logger)

	code, reason := closeStatus(ctx, cause)
	if err := s.close(code, reason); err != nil {
		logger.Debug().Err(err).Msg("close ack")
	}
	r.unregister(context.WithoutCancel(ctx), s.ID(), s)

	if cause == nil || errors.Is(cause, ErrPeerClosed) {
		logger.Info().Str("username", s.Username()).Msg("session closed")
		return nil
	}
	logger.Warn().Err(cause).Str("code", ErrorCode(cause)).Str("username", s.Username()).
		Msg("session closed with error")
	return cause
}

func (r *Registry) receive(ctx context.Context, s *Session, conn Conn, logger *zerolog.Logger) error {
	for {
		kind, data, err := r.read(ctx, conn)
		if err != nil {
			if s.closing.Load() {
				// Closed from our side, e.g. evicted after a failed delivery.
				return nil
			}
			return err
		}

		switch kind {
		case FrameText:
			if err := r.dispatch(ctx, s, data); err != nil {
				return err
			}
		default:
			if r.FramePolicy() == FramePolicyIgnore {
				logger.Debug().Int("kind", int(kind)).Msg("ignoring unsupported frame")
				continue
			}
			return coreError(ErrCodeUnsupported, ErrUnsupportedFrame, "unsupported frame kind %d", kind)
		}
	}
}

func (r *Registry) read(ctx context.Context, conn Conn) (FrameKind, []byte, error) {
	if r.idleTimeout <= 0 {
		return conn.Read(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.idleTimeout)
	defer cancel()
	return conn.Read(ctx)
}

// dispatch handles one decoded text frame. A non-nil error ends the session.
func (r *Registry) dispatch(ctx context.Context, s *Session, data []byte) error {
	ev, err := proto.Decode(data)
	if err != nil {
		return coreError(ErrCodeBadRequest, err, "malformed frame: %v", err)
	}

	switch e := ev.(type) {
	case proto.InboundMessage:
		_, err = r.Publish(ctx, s.ID(), e.Text)
	case proto.SetUsername:
		err = r.Rename(s.ID(), e.Username)
	}
	if errors.Is(err, ErrUnknownSession) {
		// Removed concurrently; the read loop ends on the next frame.
		return nil
	}
	return err
}

func closeStatus(ctx context.Context, cause error) (CloseCode, string) {
	switch {
	case cause == nil, errors.Is(cause, ErrPeerClosed):
		return CloseNormal, ""
	case ctx.Err() != nil:
		return CloseGoingAway, "server shutting down"
	case errors.Is(cause, proto.ErrDecode):
		return ClosePolicyViolation, "malformed event"
	case errors.Is(cause, ErrInvalidUsername):
		return ClosePolicyViolation, "username too long"
	case errors.Is(cause, ErrUnsupportedFrame):
		return CloseUnsupportedData, "unsupported frame"
	case errors.Is(cause, context.DeadlineExceeded):
		return ClosePolicyViolation, "idle timeout"
	default:
		return CloseInternalError, "internal error"
	}
}
