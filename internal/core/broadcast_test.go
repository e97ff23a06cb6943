package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcast/internal/proto"
)

func TestBroadcastReachesEverySession(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	_, a := register(t, r, "a")
	_, b := register(t, r, "b")
	mustEvent(t, a)

	ev := proto.OutboundMessage{Text: "x", Username: "y", Timestamp: 1}
	req.Equal(2, r.Broadcast(context.Background(), ev))
	req.Equal(ev, mustEvent(t, a))
	req.Equal(ev, mustEvent(t, b))
}

func TestBroadcastIsolatesFailingRecipient(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	_, a := register(t, r, "a")
	sb, b := register(t, r, "b")
	_, c := register(t, r, "c")
	mustEvent(t, a)
	mustEvent(t, a)
	mustEvent(t, b)

	b.failSends(errors.New("broken pipe"))

	ev := proto.OutboundMessage{Text: "hello", Username: "u", Timestamp: 1}
	req.Equal(2, r.Broadcast(context.Background(), ev))
	req.Equal(ev, mustEvent(t, a))
	req.Equal(ev, mustEvent(t, c))

	r.Wait()
	b.waitClosed(t)
	req.Equal(CloseGoingAway, b.closeStatus())
	req.Equal(2, r.Len())
	req.Equal(StateClosed, sb.State())

	leave := proto.ClientLeave{Username: sb.Username()}
	req.Equal(leave, mustEvent(t, a))
	req.Equal(leave, mustEvent(t, c))
	expectNoEvent(t, a)
}

func TestBroadcastStalledRecipientBlocksOnlyItself(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil, WithWriteTimeout(50*time.Millisecond))
	_, a := register(t, r, "a")
	_, b := register(t, r, "b")
	_, c := register(t, r, "c")
	mustEvent(t, a)
	mustEvent(t, a)
	mustEvent(t, b)

	b.stall()

	start := time.Now()
	ev := proto.OutboundMessage{Text: "tick", Username: "u", Timestamp: 1}
	req.Equal(2, r.Broadcast(context.Background(), ev))
	req.Less(time.Since(start), time.Second)

	req.Equal(ev, mustEvent(t, a))
	req.Equal(ev, mustEvent(t, c))

	r.Wait()
	req.Equal(2, r.Len())
	_, err := r.LookupUsername("b")
	req.ErrorIs(err, ErrUnknownSession)
}

func TestBroadcastSkipsClosingSessions(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	sa, a := register(t, r, "a")
	_, b := register(t, r, "b")
	mustEvent(t, a)

	req.NoError(sa.close(CloseNormal, ""))
	req.Equal(StateClosing, sa.State())

	req.Equal(1, r.Broadcast(context.Background(), proto.ClientTyping{Username: "x"}))
	mustEvent(t, b)
	r.Wait()
	// a is still registered: skipping is not a delivery failure
	req.Equal(2, r.Len())
}

func TestBroadcastNotHeldUpByPendingCloseHandshake(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	sa, a := register(t, r, "a")
	_, b := register(t, r, "b")
	mustEvent(t, a)

	release := a.stallClose()
	t.Cleanup(release)
	go func() { _ = sa.close(CloseGoingAway, "bye") }()
	a.waitClosed(t)

	done := make(chan int, 1)
	go func() {
		done <- r.Broadcast(context.Background(), proto.ClientJoin{Username: "late"})
	}()

	select {
	case n := <-done:
		req.Equal(1, n)
	case <-time.After(time.Second):
		t.Fatal("broadcast waited on a close handshake")
	}
	req.Equal(proto.ClientJoin{Username: "late"}, mustEvent(t, b))
}

func TestSendWaitingForLockSeesClose(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	sa, a := register(t, r, "a")

	sa.mu.Lock()
	result := make(chan error, 1)
	go func() { result <- sa.send(context.Background(), []byte(`{}`)) }()

	// let send pass its first check and queue on the lock
	time.Sleep(20 * time.Millisecond)
	req.NoError(sa.close(CloseGoingAway, "bye"))
	sa.mu.Unlock()

	select {
	case err := <-result:
		req.ErrorIs(err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("send did not return")
	}
	expectNoEvent(t, a)
}

func TestBroadcastIgnoresSenderCancellation(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, a := register(t, r, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Equal(t, 1, r.Broadcast(ctx, proto.ClientJoin{Username: "late"}))
	require.Equal(t, proto.ClientJoin{Username: "late"}, mustEvent(t, a))
}

func TestJoinMessageLeaveOrderingUnderConcurrency(t *testing.T) {
	req := require.New(t)
	var counter atomic.Int32
	r := newTestRegistry(t, nil, WithNameGenerator(func() string {
		return fmt.Sprintf("user%04d", counter.Add(1))
	}))
	_, observer := register(t, r, "observer")

	const workers = 40
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("w%d", i)
			conn := newFakeConn(id)
			s, err := r.Register(context.Background(), id, conn)
			if err != nil {
				t.Error(err)
				return
			}
			if _, err := r.Publish(context.Background(), id, id); err != nil {
				t.Error(err)
			}
			if !r.Unregister(context.Background(), id) {
				t.Errorf("%s was not registered", s.ID())
			}
		}(i)
	}
	wg.Wait()
	req.Equal(1, r.Len())

	// Per worker, the observer must see join, then message, then leave.
	stage := map[string]int{}
	for range workers * 3 {
		switch ev := mustEvent(t, observer).(type) {
		case proto.ClientJoin:
			req.Zero(stage[ev.Username])
			stage[ev.Username] = 1
		case proto.OutboundMessage:
			req.Equal(1, stage[ev.Username])
			stage[ev.Username] = 2
		case proto.ClientLeave:
			req.Equal(2, stage[ev.Username])
			stage[ev.Username] = 3
		default:
			t.Fatalf("unexpected event %T", ev)
		}
	}
	expectNoEvent(t, observer)
}
