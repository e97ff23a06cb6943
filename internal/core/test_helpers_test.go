package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcast/internal/proto"
)

var errConnClosed = errors.New("use of closed connection")

type frame struct {
	kind FrameKind
	data []byte
	err  error
}

// fakeConn is an in-memory Conn. Frames pushed to in are returned by Read;
// payloads passed to Send land in out.
type fakeConn struct {
	id  string
	in  chan frame
	out chan []byte

	mu         sync.Mutex
	sendErr    error
	block      chan struct{}
	closeBlock chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	closeCode  CloseCode
	closeMsg   string
	sends      int
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:     id,
		in:     make(chan frame, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Read(ctx context.Context) (FrameKind, []byte, error) {
	select {
	case f := <-c.in:
		return f.kind, f.data, f.err
	case <-c.closed:
		return 0, nil, errConnClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	c.sends++
	sendErr, block := c.sendErr, c.block
	c.mu.Unlock()

	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	if sendErr != nil {
		return sendErr
	}
	if block != nil {
		select {
		case <-block:
		case <-c.closed:
			return errConnClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.out <- payload
	return nil
}

func (c *fakeConn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeMsg = code, reason
		hold := c.closeBlock
		c.mu.Unlock()
		close(c.closed)
		if hold != nil {
			// a peer that never answers the close handshake
			<-hold
		}
	})
	return nil
}

// stallClose makes Close hang until the returned func is called.
func (c *fakeConn) stallClose() (release func()) {
	hold := make(chan struct{})
	c.mu.Lock()
	c.closeBlock = hold
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) stall() {
	c.mu.Lock()
	c.block = make(chan struct{})
	c.mu.Unlock()
}

func (c *fakeConn) text(t *testing.T, ev proto.ServerBound) {
	t.Helper()
	data, err := proto.EncodeServer(ev)
	require.NoError(t, err)
	c.in <- frame{kind: FrameText, data: data}
}

func (c *fakeConn) raw(kind FrameKind, data string) {
	c.in <- frame{kind: kind, data: []byte(data)}
}

func (c *fakeConn) peerClose() {
	c.in <- frame{err: ErrPeerClosed}
}

func (c *fakeConn) closeStatus() CloseCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s was not closed", c.id)
	}
}

// mustEvent returns the next client-bound event sent to c.
func mustEvent(t *testing.T, c *fakeConn) proto.ClientBound {
	t.Helper()
	select {
	case payload := <-c.out:
		ev, err := proto.DecodeClient(payload)
		require.NoError(t, err)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event delivered to %s", c.id)
		return nil
	}
}

func expectNoEvent(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case payload := <-c.out:
		t.Fatalf("unexpected event for %s: %s", c.id, payload)
	case <-time.After(50 * time.Millisecond):
	}
}

// serve runs conn through the registry in the background and returns its result channel.
func serve(t *testing.T, r *Registry, conn *fakeConn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background(), conn) }()
	return done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}
