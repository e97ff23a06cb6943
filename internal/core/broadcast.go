package core

import (
	"context"
	"errors"

	"github.com/vovakirdan/chatcast/internal/proto"
)

// Broadcast delivers ev to every session registered when the call starts and
// returns how many sessions received it.
func (r *Registry) Broadcast(ctx context.Context, ev proto.ClientBound) int {
	r.seq.Lock()
	defer r.seq.Unlock()
	return r.broadcastLocked(ctx, ev)
}

// broadcastLocked fans ev out one recipient at a time. Each send holds only that
// recipient's lock and is bounded by the write timeout. A recipient that fails
// is closed and removed in the background; delivery to the rest continues.
// The caller holds seq.
func (r *Registry) broadcastLocked(ctx context.Context, ev proto.ClientBound) int {
	payload, err := proto.Encode(ev)
	if err != nil {
		r.logger.Error().Err(err).Str("event", ev.Type()).Msg("encode broadcast")
		return 0
	}

	// Delivery must not stop because the connection that triggered it went away.
	ctx = context.WithoutCancel(ctx)

	delivered := 0
	for _, s := range r.snapshot() {
		if err := r.deliver(ctx, s, payload); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				continue
			}
			r.logger.Warn().Err(err).Str("session_id", s.ID()).Str("event", ev.Type()).
				Msg("delivery failed, dropping session")
			r.evict(s)
			continue
		}
		delivered++
	}

	r.logger.Debug().Str("event", ev.Type()).Int("recipients", delivered).Msg("broadcast")
	return delivered
}

func (r *Registry) deliver(ctx context.Context, s *Session, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()
	return s.send(ctx, payload)
}

// evict closes s and removes it without blocking the current fan-out, which
// still holds seq.
func (r *Registry) evict(s *Session) {
	r.evictions.Add(1)
	go func() {
		defer r.evictions.Done()
		if err := s.close(CloseGoingAway, "delivery failed"); err != nil {
			r.logger.Debug().Err(err).Str("session_id", s.ID()).Msg("close evicted session")
		}
		r.unregister(context.Background(), s.ID(), s)
	}()
}
