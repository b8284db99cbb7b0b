package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/rs/zerolog/log"
)

// endSession closes the session to new joins, then deletes it and every
// member record it references. Each delete transaction is conditioned on
// the session version read. Once closed the member set can only shrink, so
// every version mismatch is a member leaving and the re-read loop ends.
func (o *Orchestrator) endSession(ctx context.Context, sid domain.SessionID) error {
	if err := o.Store.Transact(ctx, core.CloseSession{SessionID: sid}); err != nil {
		return err
	}
	sess, err := o.Store.GetSession(ctx, sid)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	attempts := len(sess.Members) + teardownAttempts
	for attempt := 1; ; attempt++ {
		err := o.tearDown(ctx, sess)
		switch {
		case err == nil:
			log.Info().Str("module", "app.orch").Str("session_id", string(sid)).
				Int("evicted", len(sess.Members)+1).Msg("session ended")
			return nil
		case errors.Is(err, domain.ErrSessionNotFound):
			// A concurrent teardown of the same closed session finished first.
			return nil
		case !errors.Is(err, domain.ErrConcurrentUpdate):
			return err
		case attempt >= attempts:
			return fmt.Errorf("%w: teardown of %s did not settle after %d attempts", domain.ErrStore, sid, attempt)
		}
		log.Debug().Str("module", "app.orch").Str("session_id", string(sid)).Int("attempt", attempt).
			Msg("membership changed during teardown, re-reading")
		sess, err = o.Store.GetSession(ctx, sid)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// tearDown writes the deletes for one observed version of sess. Sessions
// too large for one transaction are first shrunk in batches; every batch
// removes members from the set together with their records.
func (o *Orchestrator) tearDown(ctx context.Context, sess domain.Session) error {
	members := sess.Members
	version := sess.Version

	// Final transaction: session delete + host delete + remaining members.
	const finalRoom = core.MaxTransactItems - 2
	const batch = core.MaxTransactItems - 1

	for len(members) > finalRoom {
		chunk := members[:min(batch, len(members)-finalRoom)]
		ops := make([]core.Op, 0, len(chunk)+1)
		ops = append(ops, core.RemoveSessionMembers{SessionID: sess.ID, IDs: chunk, IfVersion: version})
		for _, id := range chunk {
			ops = append(ops, core.DeleteMember{ClientID: id})
		}
		if err := o.Store.Transact(ctx, ops...); err != nil {
			return err
		}
		version++
		members = members[len(chunk):]
	}

	ops := make([]core.Op, 0, len(members)+2)
	ops = append(ops,
		core.DeleteSession{SessionID: sess.ID, IfVersion: version},
		core.DeleteMember{ClientID: sess.Host},
	)
	for _, id := range members {
		ops = append(ops, core.DeleteMember{ClientID: id})
	}
	return o.Store.Transact(ctx, ops...)
}
