// Package core owns live chat sessions: registration, renames, message
// acceptance and fan-out to every connected client.
//
// Lock order is seq, then mu, then a session's own lock; nothing acquires them
// in the opposite direction. seq serializes announcements (join, leave,
// message) so that every client sees them in the same order the log records
// them. mu only guards the session map and is held for map operations alone.
package core

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatcast/internal/proto"
)

const defaultWriteTimeout = 5 * time.Second

// Registry is the authoritative set of live sessions.
type Registry struct {
	seq sync.Mutex

	mu       sync.Mutex
	sessions map[string]*Session

	log      MessageLog
	logger   *zerolog.Logger
	now      func() time.Time
	nameFunc func() string

	writeTimeout time.Duration
	idleTimeout  time.Duration

	framePolicy   atomic.Int32
	storagePolicy atomic.Int32

	evictions sync.WaitGroup

	// servingMu guards serving and idle, which track running Serve calls.
	servingMu sync.Mutex
	serving   int
	idle      chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithWriteTimeout bounds a single send to one recipient.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithIdleTimeout closes connections that send nothing for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithFramePolicy sets the initial unsupported-frame policy.
func WithFramePolicy(p FramePolicy) Option {
	return func(r *Registry) { r.framePolicy.Store(int32(p)) }
}

// WithStoragePolicy sets the initial storage-failure policy.
func WithStoragePolicy(p StoragePolicy) Option {
	return func(r *Registry) { r.storagePolicy.Store(int32(p)) }
}

// WithClock replaces the wall clock used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithNameGenerator replaces NewUsername for freshly registered sessions.
func WithNameGenerator(gen func() string) Option {
	return func(r *Registry) { r.nameFunc = gen }
}

// NewRegistry creates an empty registry. log may be nil, in which case
// messages are broadcast without being persisted.
func NewRegistry(log MessageLog, logger *zerolog.Logger, opts ...Option) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	r := &Registry{
		sessions:     make(map[string]*Session),
		log:          log,
		logger:       logger,
		now:          time.Now,
		nameFunc:     NewUsername,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetFramePolicy changes the unsupported-frame policy for subsequent frames.
func (r *Registry) SetFramePolicy(p FramePolicy) {
	r.framePolicy.Store(int32(p))
}

// FramePolicy returns the current unsupported-frame policy.
func (r *Registry) FramePolicy() FramePolicy {
	return FramePolicy(r.framePolicy.Load())
}

// SetStoragePolicy changes the storage-failure policy for subsequent messages.
func (r *Registry) SetStoragePolicy(p StoragePolicy) {
	r.storagePolicy.Store(int32(p))
}

// StoragePolicy returns the current storage-failure policy.
func (r *Registry) StoragePolicy() StoragePolicy {
	return StoragePolicy(r.storagePolicy.Load())
}

// Register creates a session with a generated name and announces it to every
// session, the new one included.
func (r *Registry) Register(ctx context.Context, id string, out Outbound) (*Session, error) {
	r.seq.Lock()
	defer r.seq.Unlock()

	username := r.nameFunc()

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, coreError(ErrCodeConflict, ErrConflict, "session %s already registered", id)
	}
	s := newSession(id, username, out)
	s.advance(StateOpen)
	r.sessions[id] = s
	r.mu.Unlock()

	r.broadcastLocked(ctx, proto.ClientJoin{Username: username})
	return s, nil
}

// Unregister removes the session registered under id and announces its
// departure. It reports whether a session was removed; repeated calls are no-ops.
func (r *Registry) Unregister(ctx context.Context, id string) bool {
	return r.unregister(ctx, id, nil)
}

// unregister removes id only if it still maps to want (any session when want is nil).
func (r *Registry) unregister(ctx context.Context, id string, want *Session) bool {
	r.seq.Lock()
	defer r.seq.Unlock()

	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && (want == nil || s == want) {
		delete(r.sessions, id)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	s.advance(StateClosed)
	r.broadcastLocked(ctx, proto.ClientLeave{Username: s.Username()})
	return true
}

// Rename changes a session's display name. Renames are not announced.
func (r *Registry) Rename(id, username string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.rename(username)
	return nil
}

// LookupUsername returns the current name of the session registered under id.
func (r *Registry) LookupUsername(id string) (string, error) {
	s, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	return s.Username(), nil
}

// ForEachSession applies fn to a snapshot of the registered sessions. fn runs
// without the registry lock held and may call back into the registry.
func (r *Registry) ForEachSession(fn func(*Session)) {
	for _, s := range r.snapshot() {
		fn(s)
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Publish accepts text from the session registered under id: the message is
// stamped, appended to the log and broadcast to every session, the sender
// included. The next announcement starts only after this one is delivered.
func (r *Registry) Publish(ctx context.Context, id, text string) (ChatMessage, error) {
	r.seq.Lock()
	defer r.seq.Unlock()

	username, err := r.LookupUsername(id)
	if err != nil {
		return ChatMessage{}, err
	}
	msg := NewChatMessage(text, username, r.now())

	if r.log != nil {
		if err := r.log.AppendMessage(context.WithoutCancel(ctx), msg.Record()); err != nil {
			if r.StoragePolicy() == StoragePolicyClose {
				return msg, coreError(ErrCodeStorageFailure, ErrStorage, "append message: %v", err)
			}
			r.logger.Warn().Err(err).Str("session_id", id).Str("username", username).
				Msg("message log append failed, broadcasting anyway")
		}
	}

	r.broadcastLocked(ctx, msg.Event())
	return msg, nil
}

// Wait blocks until every pending asynchronous removal has finished.
func (r *Registry) Wait() {
	r.evictions.Wait()
}

// Drain blocks until every running Serve has returned and pending removals
// have finished, or until ctx is done.
func (r *Registry) Drain(ctx context.Context) error {
	r.servingMu.Lock()
	var idle chan struct{}
	if r.serving > 0 {
		if r.idle == nil {
			r.idle = make(chan struct{})
		}
		idle = r.idle
	}
	r.servingMu.Unlock()

	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	removed := make(chan struct{})
	go func() {
		r.evictions.Wait()
		close(removed)
	}()
	select {
	case <-removed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) trackServe() (done func()) {
	r.servingMu.Lock()
	r.serving++
	r.servingMu.Unlock()

	return func() {
		r.servingMu.Lock()
		r.serving--
		if r.serving == 0 && r.idle != nil {
			close(r.idle)
			r.idle = nil
		}
		r.servingMu.Unlock()
	}
}

func (r *Registry) lookup(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, coreError(ErrCodeUnknownSession, ErrUnknownSession, "no session %s", id)
	}
	return s, nil
}

func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.sessions)
}

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	State    string `json:"state"`
}

// Sessions describes every registered session, ordered by id.
func (r *Registry) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, r.Len())
	r.ForEachSession(func(s *Session) {
		infos = append(infos, SessionInfo{ID: s.ID(), Username: s.Username(), State: s.State().String()})
	})
	slices.SortFunc(infos, func(a, b SessionInfo) int { return strings.Compare(a.ID, b.ID) })
	return infos
}
