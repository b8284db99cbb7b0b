package core

import (
	"context"

	"github.com/ghaditya/spotify-group-session/internal/domain"
)

// MaxTransactItems bounds the number of ops in one Transact call.
const MaxTransactItems = 100

// MembershipStore owns the session and member relations.
// Implementations must apply every Transact call all-or-nothing and
// evaluate every op precondition against the state inside the transaction.
type MembershipStore interface {
	GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error)
	GetMember(ctx context.Context, id domain.ClientID) (domain.Member, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	Transact(ctx context.Context, ops ...Op) error
	Close() error
}

// Op is a single write inside a transaction.
type Op interface {
	isOp()
}

// PutSession creates a session record. Fails if one already exists.
type PutSession struct {
	Session domain.Session
}

// PutMember creates a member record if the client has none
// (domain.ErrMemberAttached otherwise).
type PutMember struct {
	Member domain.Member
}

// AddSessionMembers unions IDs into the member set of an existing, open
// session and bumps its version. A missing or closing session fails with
// domain.ErrSessionNotFound.
type AddSessionMembers struct {
	SessionID domain.SessionID
	IDs       []domain.ClientID
	// IfVersion, when non-zero, must equal the stored version.
	IfVersion int64
}

// RemoveSessionMembers subtracts IDs from the member set of an existing
// session and bumps its version.
type RemoveSessionMembers struct {
	SessionID domain.SessionID
	IDs       []domain.ClientID
	IfVersion int64
}

// CloseSession marks an existing session closing (domain.ErrSessionNotFound
// otherwise). Its member set can only shrink afterwards.
type CloseSession struct {
	SessionID domain.SessionID
}

// DeleteSession deletes a session record.
type DeleteSession struct {
	SessionID domain.SessionID
	IfVersion int64
}

// DeleteMember deletes a member record. When IfSession is set the record
// must exist and reference that session (domain.ErrMemberNotFound otherwise).
type DeleteMember struct {
	ClientID  domain.ClientID
	IfSession domain.SessionID
}

func (PutSession) isOp()           {}
func (CloseSession) isOp()         {}
func (PutMember) isOp()            {}
func (AddSessionMembers) isOp()    {}
func (RemoveSessionMembers) isOp() {}
func (DeleteSession) isOp()        {}
func (DeleteMember) isOp()         {}
