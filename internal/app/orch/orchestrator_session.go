package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/rs/zerolog/log"
)

// Result identifies the caller and the session it is now attached to.
type Result struct {
	ClientID  domain.ClientID  `json:"clientId"`
	SessionID domain.SessionID `json:"sessionId"`
}

// StartSession creates a session hosted by the caller. The session record
// and the host's member record are written in one transaction conditioned
// on the caller having no member record yet.
func (o *Orchestrator) StartSession(ctx context.Context, proof domain.IdentityProof) (Result, error) {
	const op = "start_session"
	clientID, err := o.resolve(ctx, proof)
	if err != nil {
		return Result{}, o.done(op, err)
	}

	now := o.now()
	sid := o.sessionID()
	err = o.Store.Transact(ctx,
		core.PutSession{Session: domain.Session{ID: sid, Host: clientID, Version: 1, CreatedAt: now}},
		core.PutMember{Member: domain.Member{
			ClientID:   clientID,
			SessionID:  sid,
			IsHost:     true,
			ClientType: proof.Type,
			Credential: proof.Credential,
			JoinedAt:   now,
		}},
	)
	if err != nil {
		return Result{}, o.done(op, err)
	}
	log.Info().Str("module", "app.orch").Str("session_id", string(sid)).Str("client_id", string(clientID)).Msg("session started")

	o.scheduleExpiry(ctx, sid, now)
	return Result{ClientID: clientID, SessionID: sid}, o.done(op, nil)
}

// scheduleExpiry is best effort: a failed enqueue leaves the session in
// place and is reported as a degraded outcome.
func (o *Orchestrator) scheduleExpiry(ctx context.Context, sid domain.SessionID, sentAt time.Time) {
	if o.Expiry == nil {
		return
	}
	msg := core.ExpiryMessage{SessionID: sid, SentAt: sentAt}
	if err := o.Expiry.Notify(ctx, msg); err != nil {
		o.Metrics.Degraded("start_session", "expiry_notify")
		log.Warn().Str("module", "app.orch").Str("session_id", string(sid)).Str("outcome", "degraded").Err(err).
			Msg("session created but expiry scheduling failed")
	}
}

// JoinSession attaches the caller to an existing session. The member set
// union requires the session to exist inside the transaction, so a join
// racing a teardown either lands before it (and is swept) or fails.
func (o *Orchestrator) JoinSession(ctx context.Context, proof domain.IdentityProof, sid domain.SessionID) (Result, error) {
	const op = "join_session"
	if err := requireSessionID(sid); err != nil {
		return Result{}, o.done(op, err)
	}
	clientID, err := o.resolve(ctx, proof)
	if err != nil {
		return Result{}, o.done(op, err)
	}

	err = o.Store.Transact(ctx,
		core.AddSessionMembers{SessionID: sid, IDs: []domain.ClientID{clientID}},
		core.PutMember{Member: domain.Member{
			ClientID:   clientID,
			SessionID:  sid,
			ClientType: proof.Type,
			Credential: proof.Credential,
			JoinedAt:   o.now(),
		}},
	)
	if err != nil {
		return Result{}, o.done(op, err)
	}
	log.Info().Str("module", "app.orch").Str("session_id", string(sid)).Str("client_id", string(clientID)).Msg("member joined")
	return Result{ClientID: clientID, SessionID: sid}, o.done(op, nil)
}

// LeaveSession detaches the caller. A departing host ends the session for
// everyone; there is no host migration.
func (o *Orchestrator) LeaveSession(ctx context.Context, proof domain.IdentityProof, sid domain.SessionID) (domain.SessionID, error) {
	const op = "leave_session"
	if err := requireSessionID(sid); err != nil {
		return "", o.done(op, err)
	}
	clientID, err := o.resolve(ctx, proof)
	if err != nil {
		return "", o.done(op, err)
	}

	sess, err := o.Store.GetSession(ctx, sid)
	if err != nil {
		return "", o.done(op, err)
	}

	if sess.Host == clientID {
		if err := o.endSession(ctx, sid); err != nil {
			return "", o.done(op, err)
		}
		return sid, o.done(op, nil)
	}

	err = o.Store.Transact(ctx,
		core.RemoveSessionMembers{SessionID: sid, IDs: []domain.ClientID{clientID}},
		core.DeleteMember{ClientID: clientID, IfSession: sid},
	)
	if err != nil {
		return "", o.done(op, err)
	}
	log.Info().Str("module", "app.orch").Str("session_id", string(sid)).Str("client_id", string(clientID)).Msg("member left")
	return sid, o.done(op, nil)
}

// EndSession lets the host end the session explicitly.
func (o *Orchestrator) EndSession(ctx context.Context, proof domain.IdentityProof, sid domain.SessionID) (domain.SessionID, error) {
	const op = "end_session"
	if err := requireSessionID(sid); err != nil {
		return "", o.done(op, err)
	}
	clientID, err := o.resolve(ctx, proof)
	if err != nil {
		return "", o.done(op, err)
	}
	sess, err := o.Store.GetSession(ctx, sid)
	if err != nil {
		return "", o.done(op, err)
	}
	if sess.Host != clientID {
		return "", o.done(op, domain.ErrNotHost)
	}
	if err := o.endSession(ctx, sid); err != nil {
		return "", o.done(op, err)
	}
	return sid, o.done(op, nil)
}

// Teardown ends a session without an identity check. It is the path used
// by the expiry worker and operator tooling.
func (o *Orchestrator) Teardown(ctx context.Context, sid domain.SessionID) error {
	const op = "teardown"
	if err := requireSessionID(sid); err != nil {
		return o.done(op, err)
	}
	return o.done(op, o.endSession(ctx, sid))
}

// GetMemberStatus is a pure read of the member relation.
// domain.ErrMemberNotFound means the client is not in any session.
func (o *Orchestrator) GetMemberStatus(ctx context.Context, id domain.ClientID) (domain.Member, error) {
	const op = "get_member_status"
	if id == "" {
		return domain.Member{}, o.done(op, fmt.Errorf("%w: clientId is required", domain.ErrValidation))
	}
	m, err := o.Store.GetMember(ctx, id)
	if err != nil {
		if domain.Kind(err) == domain.ErrNotFound {
			o.Metrics.Observe(op, err)
			return domain.Member{}, err
		}
		return domain.Member{}, o.done(op, err)
	}
	return m, o.done(op, nil)
}
