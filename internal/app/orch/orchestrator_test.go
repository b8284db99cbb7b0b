package orch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ghaditya/spotify-group-session/internal/adapters/identity"
	"github.com/ghaditya/spotify-group-session/internal/adapters/store/memory"
	"github.com/ghaditya/spotify-group-session/internal/app/metrics"
	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/core/mocks"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStartSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := mocks.NewMockExpiryNotifier(t)
	o := newTestOrchestrator(store)
	o.Expiry = notifier

	notifier.EXPECT().Notify(mockAnyContext(), mock.MatchedBy(func(msg core.ExpiryMessage) bool {
		return msg.SessionID == "s-1" && !msg.SentAt.IsZero()
	})).Return(nil).Once()

	res, err := o.StartSession(ctx, proof("host"))
	require.NoError(t, err)
	assert.Equal(t, Result{ClientID: "host", SessionID: "s-1"}, res)

	sess, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClientID("host"), sess.Host)
	assert.Empty(t, sess.Members)

	m, err := o.GetMemberStatus(ctx, "host")
	require.NoError(t, err)
	assert.True(t, m.IsHost)
	assert.Equal(t, domain.SessionID("s-1"), m.SessionID)
	assert.Equal(t, "refresh-host", m.Credential.RefreshToken)
}

func TestStartSessionUsesRandomIDs(t *testing.T) {
	o := New(memory.New(), tokenResolver{}, nil, nil)
	a, err := o.StartSession(context.Background(), proof("a"))
	require.NoError(t, err)
	b, err := o.StartSession(context.Background(), proof("b"))
	require.NoError(t, err)
	assert.Len(t, string(a.SessionID), 36)
	assert.NotEqual(t, a.SessionID, b.SessionID)
}

func TestStartSessionTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := newTestOrchestrator(store)

	_, err := o.StartSession(ctx, proof("host"))
	require.NoError(t, err)
	_, err = o.StartSession(ctx, proof("host"))
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = store.GetSession(ctx, "s-2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "no half-created session")
}

func TestStartSessionNotifyFailureIsDegraded(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	notifier := mocks.NewMockExpiryNotifier(t)
	o := newTestOrchestrator(memory.New())
	o.Expiry = notifier
	o.Metrics = metrics.New(reg)

	notifier.EXPECT().Notify(mockAnyContext(), mock.Anything).Return(errors.New("queue full")).Once()

	res, err := o.StartSession(ctx, proof("host"))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s-1"), res.SessionID)

	_, err = o.GetMemberStatus(ctx, "host")
	assert.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "group_session_degraded_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStartSessionIdentityFailures(t *testing.T) {
	ctx := context.Background()
	resolver := mocks.NewMockIdentityResolver(t)
	notifier := mocks.NewMockExpiryNotifier(t)
	store := memory.New()
	o := New(store, resolver, notifier, nil)

	resolver.EXPECT().Resolve(mockAnyContext(), mock.Anything).Return(domain.ClientID(""), fmt.Errorf("%w: expired", domain.ErrAuth)).Once()
	_, err := o.StartSession(ctx, proof("host"))
	assert.ErrorIs(t, err, domain.ErrAuth)

	resolver.EXPECT().Resolve(mockAnyContext(), mock.Anything).Return(domain.ClientID(""), errors.New("connection reset")).Once()
	_, err = o.StartSession(ctx, proof("host"))
	assert.ErrorIs(t, err, domain.ErrAuth)

	resolver.EXPECT().Resolve(mockAnyContext(), mock.Anything).
		Return(domain.ClientID(""), domain.StoreError("spotify profile", errors.New("502 Bad Gateway"))).Once()
	_, err = o.StartSession(ctx, proof("host"))
	assert.Equal(t, domain.ErrStore, domain.Kind(err), "provider outage is retryable")
	assert.NotErrorIs(t, err, domain.ErrAuth)

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestAppleMusicIsUnimplemented(t *testing.T) {
	o := New(memory.New(), identity.NewResolver(tokenResolver{}), nil, nil)
	_, err := o.StartSession(context.Background(), domain.IdentityProof{Type: domain.ClientAppleMusic})
	require.ErrorIs(t, err, domain.ErrUnimplemented)
	assert.ErrorIs(t, err, domain.ErrProviderNotImplemented)
}

func TestJoinSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := newTestOrchestrator(store)
	_, err := o.StartSession(ctx, proof("host"))
	require.NoError(t, err)

	res, err := o.JoinSession(ctx, proof("alice"), "s-1")
	require.NoError(t, err)
	assert.Equal(t, Result{ClientID: "alice", SessionID: "s-1"}, res)

	m, err := o.GetMemberStatus(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, m.IsHost)
	assert.Equal(t, domain.SessionID("s-1"), m.SessionID)

	sess, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ClientID{"alice"}, sess.Members)
	assertConsistent(t, store, "host", "alice")
}

func TestJoinMissingSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := newTestOrchestrator(store)

	_, err := o.JoinSession(ctx, proof("alice"), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = o.GetMemberStatus(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound, "no dangling member record")

	_, err = o.JoinSession(ctx, proof("alice"), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestJoinIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := newTestOrchestrator(store)
	_, err := o.StartSession(ctx, proof("h1"))
	require.NoError(t, err)
	_, err = o.StartSession(ctx, proof("h2"))
	require.NoError(t, err)

	_, err = o.JoinSession(ctx, proof("alice"), "s-1")
	require.NoError(t, err)
	_, err = o.JoinSession(ctx, proof("alice"), "s-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = o.JoinSession(ctx, proof("alice"), "s-2")
	assert.ErrorIs(t, err, domain.ErrConflict, "no switching sessions without leaving")
	_, err = o.JoinSession(ctx, proof("h1"), "s-1")
	assert.ErrorIs(t, err, domain.ErrConflict, "host cannot join own session")

	sess, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ClientID{"alice"}, sess.Members)
	assertConsistent(t, store, "h1", "h2", "alice")
}

func setupHostAB(t *testing.T, store core.MembershipStore) *Orchestrator {
	t.Helper()
	ctx := context.Background()
	o := newTestOrchestrator(store)
	_, err := o.StartSession(ctx, proof("H"))
	require.NoError(t, err)
	for _, id := range []domain.ClientID{"A", "B"} {
		_, err := o.JoinSession(ctx, proof(id), "s-1")
		require.NoError(t, err)
	}
	return o
}

func TestHostDepartureCascade(t *testing.T) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.new(t)
			o := setupHostAB(t, store)

			sid, err := o.LeaveSession(ctx, proof("H"), "s-1")
			require.NoError(t, err)
			assert.Equal(t, domain.SessionID("s-1"), sid)

			_, err = store.GetSession(ctx, "s-1")
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)
			for _, id := range []domain.ClientID{"H", "A", "B"} {
				_, err := o.GetMemberStatus(ctx, id)
				assert.ErrorIs(t, err, domain.ErrNotFound, id)
			}

			_, err = o.LeaveSession(ctx, proof("A"), "s-1")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestNonHostDepartureIsolation(t *testing.T) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.new(t)
			o := setupHostAB(t, store)

			_, err := o.LeaveSession(ctx, proof("A"), "s-1")
			require.NoError(t, err)

			_, err = o.GetMemberStatus(ctx, "A")
			assert.ErrorIs(t, err, domain.ErrMemberNotFound)

			b, err := o.GetMemberStatus(ctx, "B")
			require.NoError(t, err)
			assert.Equal(t, domain.SessionID("s-1"), b.SessionID)
			assert.False(t, b.IsHost)

			sess, err := store.GetSession(ctx, "s-1")
			require.NoError(t, err)
			assert.Equal(t, domain.ClientID("H"), sess.Host)
			assert.Equal(t, []domain.ClientID{"B"}, sess.Members)
			assertConsistent(t, store, "H", "A", "B")

			// A may start over after leaving.
			_, err = o.JoinSession(ctx, proof("A"), "s-1")
			assert.NoError(t, err)
		})
	}
}

func TestLeaveSessionNotAMember(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := setupHostAB(t, store)
	_, err := o.StartSession(ctx, proof("H2"))
	require.NoError(t, err)

	_, err = o.LeaveSession(ctx, proof("A"), "s-2")
	require.ErrorIs(t, err, domain.ErrMemberNotFound)

	a, err := o.GetMemberStatus(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s-1"), a.SessionID)

	_, err = o.LeaveSession(ctx, proof("stranger"), "s-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assertConsistent(t, store, "H", "H2", "A", "B", "stranger")
}

func TestGetMemberStatusIdempotent(t *testing.T) {
	ctx := context.Background()
	o := setupHostAB(t, memory.New())

	first, err := o.GetMemberStatus(ctx, "B")
	require.NoError(t, err)
	second, err := o.GetMemberStatus(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = o.GetMemberStatus(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := setupHostAB(t, store)

	_, err := o.EndSession(ctx, proof("A"), "s-1")
	require.ErrorIs(t, err, domain.ErrNotHost)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = o.EndSession(ctx, proof("H"), "s-1")
	require.NoError(t, err)
	assertConsistent(t, store, "H", "A", "B")
	_, err = o.GetMemberStatus(ctx, "B")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := setupHostAB(t, store)

	require.NoError(t, o.Teardown(ctx, "s-1"))
	assert.ErrorIs(t, o.Teardown(ctx, "s-1"), domain.ErrSessionNotFound)
	assert.ErrorIs(t, o.Teardown(ctx, ""), domain.ErrValidation)
	assertConsistent(t, store, "H", "A", "B")
}

func TestStoreFailureIsStoreError(t *testing.T) {
	ctx := context.Background()
	store := &hookStore{MembershipStore: memory.New(), before: func([]core.Op) error { return errors.New("throttled") }}
	o := newTestOrchestrator(store)

	_, err := o.StartSession(ctx, proof("host"))
	require.ErrorIs(t, err, domain.ErrStore)
	assert.Contains(t, err.Error(), "throttled")

	_, err = o.GetMemberStatus(ctx, "host")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestTeardownLargeSessionInBatches(t *testing.T) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			var largest int
			store := &hookStore{MembershipStore: f.new(t), before: func(ops []core.Op) error {
				largest = max(largest, len(ops))
				return nil
			}}
			o := newTestOrchestrator(store)
			_, err := o.StartSession(ctx, proof("H"))
			require.NoError(t, err)

			ids := []domain.ClientID{"H"}
			for i := range 250 {
				id := domain.ClientID(fmt.Sprintf("m%03d", i))
				ids = append(ids, id)
				_, err := o.JoinSession(ctx, proof(id), "s-1")
				require.NoError(t, err)
			}

			_, err = o.LeaveSession(ctx, proof("H"), "s-1")
			require.NoError(t, err)
			assert.LessOrEqual(t, largest, core.MaxTransactItems)

			_, err = store.GetSession(ctx, "s-1")
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)
			for _, id := range ids {
				_, err := store.GetMember(ctx, id)
				assert.ErrorIs(t, err, domain.ErrMemberNotFound, id)
			}
		})
	}
}

func TestHostLeaveWinsOverInterleavedJoins(t *testing.T) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			base := f.new(t)
			var o *Orchestrator
			var joinErrs []error
			store := &hookStore{MembershipStore: base}
			store.before = func(ops []core.Op) error {
				switch ops[0].(type) {
				case core.RemoveSessionMembers, core.DeleteSession:
					// A join lands between every teardown read and write.
					_, err := o.JoinSession(ctx, proof(domain.ClientID(fmt.Sprintf("late%d", len(joinErrs)))), "s-1")
					joinErrs = append(joinErrs, err)
				}
				return nil
			}
			o = newTestOrchestrator(store)
			_, err := o.StartSession(ctx, proof("H"))
			require.NoError(t, err)
			_, err = o.JoinSession(ctx, proof("A"), "s-1")
			require.NoError(t, err)

			_, err = o.LeaveSession(ctx, proof("H"), "s-1")
			require.NoError(t, err)

			require.NotEmpty(t, joinErrs)
			for _, err := range joinErrs {
				assert.ErrorIs(t, err, domain.ErrSessionNotFound)
			}
			_, err = base.GetMember(ctx, "H")
			assert.ErrorIs(t, err, domain.ErrMemberNotFound, "host must be detached")
			_, err = base.GetSession(ctx, "s-1")
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)
			assertConsistent(t, base, "H", "A", "late0")
		})
	}
}

func TestTeardownRereadsAfterConcurrentLeave(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	var o *Orchestrator
	injected := false
	store := &hookStore{MembershipStore: base}
	store.before = func(ops []core.Op) error {
		if _, ok := ops[0].(core.DeleteSession); ok && !injected {
			injected = true
			// A member leaves between the teardown's read and its write.
			_, err := o.LeaveSession(ctx, proof("A"), "s-1")
			require.NoError(t, err)
		}
		return nil
	}
	o = newTestOrchestrator(store)
	_, err := o.StartSession(ctx, proof("H"))
	require.NoError(t, err)
	for _, id := range []domain.ClientID{"A", "B"} {
		_, err = o.JoinSession(ctx, proof(id), "s-1")
		require.NoError(t, err)
	}

	_, err = o.LeaveSession(ctx, proof("H"), "s-1")
	require.NoError(t, err)
	assert.True(t, injected)
	assertConsistent(t, base, "H", "A", "B")
	_, err = base.GetMember(ctx, "B")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestTeardownThatNeverSettlesIsStoreError(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	store := &hookStore{MembershipStore: base, before: func(ops []core.Op) error {
		if _, ok := ops[0].(core.DeleteSession); ok {
			return domain.ErrConcurrentUpdate
		}
		return nil
	}}
	o := newTestOrchestrator(store)
	_, err := o.StartSession(ctx, proof("H"))
	require.NoError(t, err)

	_, err = o.LeaveSession(ctx, proof("H"), "s-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrStore, domain.Kind(err))
	assert.NotErrorIs(t, err, domain.ErrConflict)
}
