package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vovakirdan/chatcast/internal/core/mocks"
	"github.com/vovakirdan/chatcast/internal/proto"
	"github.com/vovakirdan/chatcast/internal/store"
	"github.com/vovakirdan/chatcast/internal/store/sqlite"
)

const usernamePattern = `^user[A-Z0-9]{4}$`

func newTestRegistry(t *testing.T, log MessageLog, opts ...Option) *Registry {
	t.Helper()
	logger := zerolog.Nop()
	r := NewRegistry(log, &logger, opts...)
	t.Cleanup(r.Wait)
	return r
}

func newTestLog(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// register adds a fake connection and consumes its own join announcement.
func register(t *testing.T, r *Registry, id string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(id)
	s, err := r.Register(context.Background(), id, conn)
	require.NoError(t, err)
	require.Equal(t, proto.ClientJoin{Username: s.Username()}, mustEvent(t, conn))
	return s, conn
}

func TestNewUsernameShape(t *testing.T) {
	for range 200 {
		require.Regexp(t, usernamePattern, NewUsername())
	}
}

func TestRegisterAnnouncesJoinToEveryone(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)

	sa, a := register(t, r, "a")
	req.Regexp(usernamePattern, sa.Username())
	req.Equal(StateOpen, sa.State())

	sb, b := register(t, r, "b")
	req.Equal(proto.ClientJoin{Username: sb.Username()}, mustEvent(t, a))
	expectNoEvent(t, b)
	req.Equal(2, r.Len())
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	register(t, r, "a")

	_, err := r.Register(context.Background(), "a", newFakeConn("a"))
	req.ErrorIs(err, ErrConflict)
	req.Equal(ErrCodeConflict, ErrorCode(err))
	req.Equal(1, r.Len())
}

func TestUnregisterAnnouncesLeaveOnce(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	sa, a := register(t, r, "a")
	_, b := register(t, r, "b")
	mustEvent(t, a) // b's join

	req.True(r.Unregister(context.Background(), "a"))
	req.False(r.Unregister(context.Background(), "a"))

	req.Equal(proto.ClientLeave{Username: sa.Username()}, mustEvent(t, b))
	expectNoEvent(t, b)
	expectNoEvent(t, a)
	req.Equal(StateClosed, sa.State())
	req.Equal(1, r.Len())
}

func TestRenameIsSilent(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	_, a := register(t, r, "a")
	_, b := register(t, r, "b")
	mustEvent(t, a)

	req.NoError(r.Rename("a", "alice"))
	name, err := r.LookupUsername("a")
	req.NoError(err)
	req.Equal("alice", name)

	expectNoEvent(t, a)
	expectNoEvent(t, b)
}

func TestRenameEnforcesLengthBeforeMutation(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	sa, _ := register(t, r, "a")
	original := sa.Username()

	req.NoError(r.Rename("a", strings.Repeat("x", MaxUsernameLength)))
	req.NoError(r.Rename("a", original))

	err := r.Rename("a", strings.Repeat("x", MaxUsernameLength+1))
	req.ErrorIs(err, ErrInvalidUsername)
	req.Equal(ErrCodeInvalidUsername, ErrorCode(err))

	name, err := r.LookupUsername("a")
	req.NoError(err)
	req.Equal(original, name)
}

func TestUnknownSession(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)

	_, err := r.LookupUsername("ghost")
	req.ErrorIs(err, ErrUnknownSession)
	req.ErrorIs(r.Rename("ghost", "bob"), ErrUnknownSession)

	_, err = r.Publish(context.Background(), "ghost", "boo")
	req.ErrorIs(err, ErrUnknownSession)
}

func TestPublishEchoesToEveryoneAndLogs(t *testing.T) {
	req := require.New(t)
	st := newTestLog(t)
	now := time.UnixMilli(1700000000123)
	r := newTestRegistry(t, st, WithClock(func() time.Time { return now }))

	sa, a := register(t, r, "a")
	_, b := register(t, r, "b")
	mustEvent(t, a)

	msg, err := r.Publish(context.Background(), "a", "hi")
	req.NoError(err)

	want := proto.OutboundMessage{Text: "hi", Username: sa.Username(), Timestamp: 1700000000123}
	req.Equal(want, msg.Event())
	req.Equal(want, mustEvent(t, a))
	req.Equal(want, mustEvent(t, b))

	logged, err := st.ListMessages(context.Background(), 10)
	req.NoError(err)
	req.Len(logged, 1)
	req.Equal("hi", logged[0].Text)
	req.Equal(sa.Username(), logged[0].Username)
	req.EqualValues(1700000000123, logged[0].Timestamp)
}

func TestPublishSnapshotsUsername(t *testing.T) {
	req := require.New(t)
	st := newTestLog(t)
	r := newTestRegistry(t, st)
	sa, a := register(t, r, "a")
	before := sa.Username()

	msg, err := r.Publish(context.Background(), "a", "first")
	req.NoError(err)
	mustEvent(t, a)
	req.NoError(r.Rename("a", "renamed"))

	req.Equal(before, msg.Username)
	logged, err := st.ListMessages(context.Background(), 1)
	req.NoError(err)
	req.Equal(before, logged[0].Username)
}

func TestMessageOrderMatchesLogOrder(t *testing.T) {
	req := require.New(t)
	st := newTestLog(t)
	r := newTestRegistry(t, st)

	ids := []string{"a", "b", "c"}
	conns := make([]*fakeConn, 0, len(ids))
	for _, id := range ids {
		_, c := register(t, r, id)
		conns = append(conns, c)
	}
	for i, c := range conns {
		for range len(ids) - 1 - i {
			mustEvent(t, c)
		}
	}

	const perSender = 20
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := range perSender {
				if _, err := r.Publish(context.Background(), id, fmt.Sprintf("%s-%d", id, i)); err != nil {
					t.Error(err)
				}
			}
		}(id)
	}
	wg.Wait()

	total := perSender * len(ids)
	logged, err := st.ListMessages(context.Background(), total)
	req.NoError(err)
	req.Len(logged, total)

	// ListMessages is newest first.
	var logOrder []string
	for i := len(logged) - 1; i >= 0; i-- {
		logOrder = append(logOrder, logged[i].Text)
	}

	for _, c := range conns {
		var seen []string
		for range total {
			ev := mustEvent(t, c)
			seen = append(seen, ev.(proto.OutboundMessage).Text)
		}
		req.Equal(logOrder, seen, "recipient %s", c.id)
	}
}

func TestStorageFailureContinuePolicyStillBroadcasts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := mocks.NewMockMessageLog(ctrl)
	log.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(1)

	r := newTestRegistry(t, log)
	_, a := register(t, r, "a")

	msg, err := r.Publish(context.Background(), "a", "still here")
	req.NoError(err)
	req.Equal(msg.Event(), mustEvent(t, a))
}

func TestStorageFailureClosePolicyDropsMessage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := mocks.NewMockMessageLog(ctrl)
	log.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(1)

	r := newTestRegistry(t, log, WithStoragePolicy(StoragePolicyClose))
	_, a := register(t, r, "a")

	_, err := r.Publish(context.Background(), "a", "lost")
	req.ErrorIs(err, ErrStorage)
	req.Equal(ErrCodeStorageFailure, ErrorCode(err))
	expectNoEvent(t, a)
}

func TestPublishAppendsRecordBeforeBroadcast(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockMessageLog(ctrl)

	r := newTestRegistry(t, log)
	sa, a := register(t, r, "a")

	log.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *store.Message) error {
			require.Equal(t, "ping", msg.Text)
			require.Equal(t, sa.Username(), msg.Username)
			// nothing has been delivered yet
			expectNoEvent(t, a)
			return nil
		}).Times(1)

	_, err := r.Publish(context.Background(), "a", "ping")
	require.NoError(t, err)
	mustEvent(t, a)
}

func TestForEachSessionMatchesRegisteredNames(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		register(t, r, id)
	}
	req.NoError(r.Rename("b", "bob"))
	r.Unregister(context.Background(), "c")

	var fromSnapshot, fromLookup []string
	r.ForEachSession(func(s *Session) {
		fromSnapshot = append(fromSnapshot, s.Username())
		name, err := r.LookupUsername(s.ID())
		req.NoError(err)
		fromLookup = append(fromLookup, name)
	})

	req.Len(fromSnapshot, 2)
	req.Contains(fromSnapshot, "bob")
	req.ElementsMatch(fromSnapshot, fromLookup)

	infos := r.Sessions()
	req.Len(infos, 2)
	for _, info := range infos {
		req.Equal("open", info.State)
	}
}

func TestPoliciesCanChangeAtRuntime(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t, nil)
	req.Equal(FramePolicyClose, r.FramePolicy())
	req.Equal(StoragePolicyContinue, r.StoragePolicy())

	r.SetFramePolicy(FramePolicyIgnore)
	r.SetStoragePolicy(StoragePolicyClose)
	req.Equal(FramePolicyIgnore, r.FramePolicy())
	req.Equal(StoragePolicyClose, r.StoragePolicy())

	p, err := ParseFramePolicy("ignore")
	req.NoError(err)
	req.Equal(FramePolicyIgnore, p)
	_, err = ParseFramePolicy("explode")
	req.Error(err)

	sp, err := ParseStoragePolicy("close")
	req.NoError(err)
	req.Equal(StoragePolicyClose, sp)
	req.Equal("close", sp.String())
}
