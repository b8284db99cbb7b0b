// Package storetest holds behaviour checks every MembershipStore must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Factory func(t *testing.T) core.MembershipStore

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndRead", func(t *testing.T) { testCreateAndRead(t, newStore(t)) })
	t.Run("DuplicateMemberRollsBack", func(t *testing.T) { testDuplicateMemberRollsBack(t, newStore(t)) })
	t.Run("AddToMissingSession", func(t *testing.T) { testAddToMissingSession(t, newStore(t)) })
	t.Run("RemoveAndDelete", func(t *testing.T) { testRemoveAndDelete(t, newStore(t)) })
	t.Run("VersionPrecondition", func(t *testing.T) { testVersionPrecondition(t, newStore(t)) })
	t.Run("DeleteMemberIfSession", func(t *testing.T) { testDeleteMemberIfSession(t, newStore(t)) })
	t.Run("ConcurrentAddsCommute", func(t *testing.T) { testConcurrentAddsCommute(t, newStore(t)) })
	t.Run("TooManyItems", func(t *testing.T) { testTooManyItems(t, newStore(t)) })
	t.Run("ListSessions", func(t *testing.T) { testListSessions(t, newStore(t)) })
	t.Run("ClosingSessionRejectsJoins", func(t *testing.T) { testClosingSessionRejectsJoins(t, newStore(t)) })
}

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func hostOps(sid domain.SessionID, host domain.ClientID) []core.Op {
	return []core.Op{
		core.PutSession{Session: domain.Session{ID: sid, Host: host, Version: 1, CreatedAt: now}},
		core.PutMember{Member: domain.Member{
			ClientID: host, SessionID: sid, IsHost: true, JoinedAt: now,
			Credential: domain.Credential{AccessToken: "a-" + string(host), RefreshToken: "r-" + string(host)},
		}},
	}
}

func joinOps(sid domain.SessionID, id domain.ClientID) []core.Op {
	return []core.Op{
		core.AddSessionMembers{SessionID: sid, IDs: []domain.ClientID{id}},
		core.PutMember{Member: domain.Member{ClientID: id, SessionID: sid, JoinedAt: now}},
	}
}

func testCreateAndRead(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "host")...))

	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClientID("host"), sess.Host)
	assert.Empty(t, sess.Members)
	assert.Equal(t, int64(1), sess.Version)
	assert.True(t, now.Equal(sess.CreatedAt))

	m, err := s.GetMember(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s1"), m.SessionID)
	assert.True(t, m.IsHost)
	assert.Equal(t, "a-host", m.Credential.AccessToken)
	assert.Equal(t, "r-host", m.Credential.RefreshToken)

	_, err = s.GetMember(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	_, err = s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func testDuplicateMemberRollsBack(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "host")...))

	err := s.Transact(ctx, hostOps("s2", "host")...)
	require.ErrorIs(t, err, domain.ErrMemberAttached)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = s.GetSession(ctx, "s2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "session put must roll back with the failed member put")

	m, err := s.GetMember(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s1"), m.SessionID)
}

func testAddToMissingSession(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	err := s.Transact(ctx, joinOps("ghost", "alice")...)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = s.GetMember(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func testRemoveAndDelete(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "host")...))
	require.NoError(t, s.Transact(ctx, joinOps("s1", "alice")...))
	require.NoError(t, s.Transact(ctx, joinOps("s1", "bob")...))

	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ClientID{"alice", "bob"}, sess.Members)
	assert.Equal(t, int64(3), sess.Version)

	require.NoError(t, s.Transact(ctx,
		core.RemoveSessionMembers{SessionID: "s1", IDs: []domain.ClientID{"alice"}},
		core.DeleteMember{ClientID: "alice", IfSession: "s1"},
	))
	sess, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ClientID{"bob"}, sess.Members)

	require.NoError(t, s.Transact(ctx,
		core.DeleteSession{SessionID: "s1", IfVersion: sess.Version},
		core.DeleteMember{ClientID: "host"},
		core.DeleteMember{ClientID: "bob"},
	))
	_, err = s.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	for _, id := range []domain.ClientID{"host", "alice", "bob"} {
		_, err = s.GetMember(ctx, id)
		assert.ErrorIs(t, err, domain.ErrMemberNotFound, id)
	}
}

func testVersionPrecondition(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "host")...))
	require.NoError(t, s.Transact(ctx, joinOps("s1", "alice")...))

	err := s.Transact(ctx,
		core.DeleteSession{SessionID: "s1", IfVersion: 1},
		core.DeleteMember{ClientID: "host"},
	)
	require.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	_, err = s.GetMember(ctx, "host")
	assert.NoError(t, err, "member delete must roll back with the failed session delete")

	err = s.Transact(ctx, core.DeleteSession{SessionID: "missing", IfVersion: 1})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func testDeleteMemberIfSession(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "h1")...))
	require.NoError(t, s.Transact(ctx, hostOps("s2", "h2")...))
	require.NoError(t, s.Transact(ctx, joinOps("s1", "alice")...))

	err := s.Transact(ctx,
		core.RemoveSessionMembers{SessionID: "s2", IDs: []domain.ClientID{"alice"}},
		core.DeleteMember{ClientID: "alice", IfSession: "s2"},
	)
	require.ErrorIs(t, err, domain.ErrMemberNotFound)

	s2, err := s.GetSession(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s2.Version)
	m, err := s.GetMember(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s1"), m.SessionID)
}

func testConcurrentAddsCommute(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "host")...))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Transact(ctx, joinOps("s1", domain.ClientID(fmt.Sprintf("m%02d", i)))...)
		}()
	}
	wg.Wait()

	want := make([]domain.ClientID, 0, n)
	for i := range n {
		require.NoError(t, errs[i])
		want = append(want, domain.ClientID(fmt.Sprintf("m%02d", i)))
	}
	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, sess.Members)
	assert.Equal(t, int64(n+1), sess.Version)
}

func testTooManyItems(t *testing.T, s core.MembershipStore) {
	ops := make([]core.Op, core.MaxTransactItems+1)
	for i := range ops {
		ops[i] = core.DeleteMember{ClientID: domain.ClientID(fmt.Sprintf("c%d", i))}
	}
	err := s.Transact(context.Background(), ops...)
	assert.ErrorIs(t, err, domain.ErrStore)
}

func testListSessions(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "h1")...))
	require.NoError(t, s.Transact(ctx, hostOps("s2", "h2")...))
	require.NoError(t, s.Transact(ctx, joinOps("s2", "alice")...))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []domain.SessionID{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []domain.SessionID{"s1", "s2"}, ids)
}

func testClosingSessionRejectsJoins(t *testing.T, s core.MembershipStore) {
	ctx := context.Background()
	require.NoError(t, s.Transact(ctx, hostOps("s1", "host")...))
	require.NoError(t, s.Transact(ctx, joinOps("s1", "a")...))
	require.NoError(t, s.Transact(ctx, joinOps("s1", "b")...))

	require.NoError(t, s.Transact(ctx, core.CloseSession{SessionID: "s1"}))
	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sess.Closing)

	err = s.Transact(ctx, joinOps("s1", "late")...)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = s.GetMember(ctx, "late")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound, "rejected join must roll back")

	// Members may still leave a closing session.
	require.NoError(t, s.Transact(ctx,
		core.RemoveSessionMembers{SessionID: "s1", IDs: []domain.ClientID{"a"}},
		core.DeleteMember{ClientID: "a", IfSession: "s1"},
	))
	sess, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ClientID{"b"}, sess.Members)
	assert.True(t, sess.Closing)

	err = s.Transact(ctx, core.CloseSession{SessionID: "missing"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
