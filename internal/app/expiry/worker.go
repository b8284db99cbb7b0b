package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/rs/zerolog/log"
)

// Tearer ends a session and all its memberships.
type Tearer interface {
	Teardown(ctx context.Context, sid domain.SessionID) error
}

type Worker struct {
	messages <-chan core.ExpiryMessage
	sessions Tearer
	ttl      time.Duration
	sweep    time.Duration
	now      func() time.Time

	// due is owned by the Run goroutine.
	due map[domain.SessionID]time.Time
}

func NewWorker(messages <-chan core.ExpiryMessage, sessions Tearer, ttl, sweep time.Duration) *Worker {
	return &Worker{
		messages: messages,
		sessions: sessions,
		ttl:      ttl,
		sweep:    sweep,
		now:      time.Now,
		due:      make(map[domain.SessionID]time.Time),
	}
}

// Run consumes messages and sweeps due sessions until ctx is done or the
// message channel is closed.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.sweep)
	defer ticker.Stop()
	log.Info().Str("module", "app.expiry").Dur("ttl", w.ttl).Dur("sweep", w.sweep).Msg("expiry worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.expiry").Int("pending", len(w.due)).Msg("expiry worker stopped")
			return nil
		case msg, ok := <-w.messages:
			if !ok {
				return nil
			}
			w.schedule(msg)
		case <-ticker.C:
			w.sweepDue(ctx)
		}
	}
}

// Seed schedules sessions that outlived a previous process. It must be
// called before Run.
func (w *Worker) Seed(sessions []domain.Session) {
	for _, sess := range sessions {
		w.schedule(core.ExpiryMessage{SessionID: sess.ID, SentAt: sess.CreatedAt})
	}
	if len(sessions) > 0 {
		log.Info().Str("module", "app.expiry").Int("sessions", len(sessions)).Msg("expiry seeded from store")
	}
}

func (w *Worker) schedule(msg core.ExpiryMessage) {
	if msg.SessionID == "" {
		return
	}
	sent := msg.SentAt
	if sent.IsZero() {
		sent = w.now()
	}
	if _, dup := w.due[msg.SessionID]; dup {
		return
	}
	w.due[msg.SessionID] = sent.Add(w.ttl)
}

func (w *Worker) sweepDue(ctx context.Context) {
	now := w.now()
	for sid, at := range w.due {
		if now.Before(at) {
			continue
		}
		err := w.sessions.Teardown(ctx, sid)
		switch {
		case err == nil:
			log.Info().Str("module", "app.expiry").Str("session_id", string(sid)).Msg("expired session ended")
		case errors.Is(err, domain.ErrNotFound):
			// Already ended by its host.
		default:
			log.Warn().Str("module", "app.expiry").Str("session_id", string(sid)).Err(err).Msg("teardown failed, will retry")
			continue
		}
		delete(w.due, sid)
	}
}
