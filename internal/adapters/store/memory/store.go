// Package memory is a MembershipStore kept in process memory. It is used
// by tests and by single-instance dev deployments.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionRow struct {
	session domain.Session
	members map[domain.ClientID]struct{}
}

func (r *sessionRow) clone() *sessionRow {
	return &sessionRow{session: r.session, members: maps.Clone(r.members)}
}

func (r *sessionRow) snapshot() domain.Session {
	s := r.session
	s.Members = slices.Sorted(maps.Keys(r.members))
	if s.Members == nil {
		s.Members = []domain.ClientID{}
	}
	return s
}

// Store is a threadsafe in-memory membership store. Transactions are
// serialized by a single writer lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionRow
	members  map[domain.ClientID]domain.Member
}

var _ core.MembershipStore = (*Store)(nil)

func New() *Store {
	return &Store{
		sessions: make(map[domain.SessionID]*sessionRow),
		members:  make(map[domain.ClientID]domain.Member),
	}
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, domain.StoreError("get session", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return row.snapshot(), nil
}

func (s *Store) GetMember(ctx context.Context, id domain.ClientID) (domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return domain.Member{}, domain.StoreError("get member", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return m, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreError("list sessions", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, row := range s.sessions {
		out = append(out, row.snapshot())
	}
	slices.SortFunc(out, func(a, b domain.Session) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Transact(ctx context.Context, ops ...core.Op) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError("transact", err)
	}
	if len(ops) > core.MaxTransactItems {
		return domain.StoreError("transact", fmt.Errorf("%d ops exceeds limit of %d", len(ops), core.MaxTransactItems))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txn{
		store:    s,
		sessions: make(map[domain.SessionID]*sessionRow),
		members:  make(map[domain.ClientID]*domain.Member),
	}
	for i, op := range ops {
		if err := tx.apply(op); err != nil {
			log.Debug().Str("module", "adapters.store.memory").Int("op", i).Err(err).Msg("transaction cancelled")
			return err
		}
	}
	tx.commit()
	return nil
}

// txn stages writes over the committed maps. A nil entry marks a delete.
type txn struct {
	store    *Store
	sessions map[domain.SessionID]*sessionRow
	members  map[domain.ClientID]*domain.Member
}

func (t *txn) session(id domain.SessionID) *sessionRow {
	if row, ok := t.sessions[id]; ok {
		return row
	}
	row, ok := t.store.sessions[id]
	if !ok {
		return nil
	}
	c := row.clone()
	t.sessions[id] = c
	return c
}

func (t *txn) member(id domain.ClientID) *domain.Member {
	if m, ok := t.members[id]; ok {
		return m
	}
	m, ok := t.store.members[id]
	if !ok {
		return nil
	}
	return &m
}

func checkVersion(row *sessionRow, want int64) error {
	if want != 0 && row.session.Version != want {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (t *txn) apply(op core.Op) error {
	switch op := op.(type) {
	case core.PutSession:
		if t.session(op.Session.ID) != nil {
			return fmt.Errorf("%w: session %s already exists", domain.ErrConflict, op.Session.ID)
		}
		row := &sessionRow{session: op.Session, members: make(map[domain.ClientID]struct{})}
		for _, id := range op.Session.Members {
			row.members[id] = struct{}{}
		}
		row.session.Members = nil
		t.sessions[op.Session.ID] = row
	case core.PutMember:
		if t.member(op.Member.ClientID) != nil {
			return domain.ErrMemberAttached
		}
		m := op.Member
		t.members[m.ClientID] = &m
	case core.AddSessionMembers:
		row := t.session(op.SessionID)
		if row == nil || row.session.Closing {
			return domain.ErrSessionNotFound
		}
		if err := checkVersion(row, op.IfVersion); err != nil {
			return err
		}
		for _, id := range op.IDs {
			row.members[id] = struct{}{}
		}
		row.session.Version++
	case core.RemoveSessionMembers:
		row := t.session(op.SessionID)
		if row == nil {
			return domain.ErrSessionNotFound
		}
		if err := checkVersion(row, op.IfVersion); err != nil {
			return err
		}
		for _, id := range op.IDs {
			delete(row.members, id)
		}
		row.session.Version++
	case core.CloseSession:
		row := t.session(op.SessionID)
		if row == nil {
			return domain.ErrSessionNotFound
		}
		row.session.Closing = true
	case core.DeleteSession:
		row := t.session(op.SessionID)
		if row == nil {
			if op.IfVersion != 0 {
				return domain.ErrSessionNotFound
			}
			return nil
		}
		if err := checkVersion(row, op.IfVersion); err != nil {
			return err
		}
		t.sessions[op.SessionID] = nil
	case core.DeleteMember:
		if op.IfSession != "" {
			m := t.member(op.ClientID)
			if m == nil || m.SessionID != op.IfSession {
				return domain.ErrMemberNotFound
			}
		}
		t.members[op.ClientID] = nil
	default:
		return domain.StoreError("transact", fmt.Errorf("unsupported op %T", op))
	}
	return nil
}

func (t *txn) commit() {
	for id, row := range t.sessions {
		if row == nil {
			delete(t.store.sessions, id)
			continue
		}
		t.store.sessions[id] = row
	}
	for id, m := range t.members {
		if m == nil {
			delete(t.store.members, id)
			continue
		}
		t.store.members[id] = *m
	}
}
