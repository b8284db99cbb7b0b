// Package orch is the session lifecycle engine. It owns every write to the
// session and member relations and keeps them consistent by issuing each
// transition as one conditional store transaction. It holds no mutable
// state of its own between calls.
package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/app/metrics"
	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// teardownAttempts is the re-read allowance on top of one per member that
// may leave a closing session.
const teardownAttempts = 3

type Orchestrator struct {
	Store    core.MembershipStore
	Identity core.IdentityResolver
	Expiry   core.ExpiryNotifier
	Metrics  *metrics.Recorder

	Now   func() time.Time
	NewID func() domain.SessionID
}

func New(store core.MembershipStore, identity core.IdentityResolver, expiry core.ExpiryNotifier, rec *metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Identity: identity,
		Expiry:   expiry,
		Metrics:  rec,
		Now:      time.Now,
		NewID:    newSessionID,
	}
}

func newSessionID() domain.SessionID {
	return domain.SessionID(uuid.NewString())
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

func (o *Orchestrator) sessionID() domain.SessionID {
	if o.NewID == nil {
		return newSessionID()
	}
	return o.NewID()
}

// resolve maps a proof to a client id. Anything the resolver returns that
// is not already classified counts as an auth failure; classified store
// failures (provider unreachable) pass through as retryable.
func (o *Orchestrator) resolve(ctx context.Context, proof domain.IdentityProof) (domain.ClientID, error) {
	id, err := o.Identity.Resolve(ctx, proof)
	if err != nil {
		if domain.Kind(err) == domain.ErrStore && !errors.Is(err, domain.ErrStore) {
			return "", fmt.Errorf("%w: %w", domain.ErrAuth, err)
		}
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: resolver returned empty client id", domain.ErrAuth)
	}
	return id, nil
}

// done records the outcome of op and returns err classified.
func (o *Orchestrator) done(op string, err error) error {
	err = domain.StoreError(op, err)
	o.Metrics.Observe(op, err)
	if err != nil {
		ev := log.Info()
		if domain.Kind(err) == domain.ErrStore {
			ev = log.Error()
		}
		ev.Str("module", "app.orch").Str("op", op).Str("outcome", metrics.Outcome(err)).Err(err).Msg("operation failed")
	}
	return err
}

func requireSessionID(id domain.SessionID) error {
	if id == "" {
		return fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}
	return nil
}
