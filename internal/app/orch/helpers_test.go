package orch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/adapters/store/memory"
	"github.com/ghaditya/spotify-group-session/internal/adapters/store/sqlite"
	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// tokenResolver treats the access token as the client id.
type tokenResolver struct{}

func (tokenResolver) Resolve(_ context.Context, proof domain.IdentityProof) (domain.ClientID, error) {
	if proof.Credential.AccessToken == "" {
		return "", fmt.Errorf("%w: empty token", domain.ErrAuth)
	}
	return domain.ClientID(proof.Credential.AccessToken), nil
}

func proof(id domain.ClientID) domain.IdentityProof {
	return domain.IdentityProof{
		Type:       domain.ClientSpotify,
		Credential: domain.Credential{AccessToken: string(id), RefreshToken: "refresh-" + string(id)},
	}
}

type storeFactory struct {
	name string
	new  func(t *testing.T) core.MembershipStore
}

var storeFactories = []storeFactory{
	{"memory", func(t *testing.T) core.MembershipStore { return memory.New() }},
	{"sqlite", func(t *testing.T) core.MembershipStore {
		s, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "membership.db"), PoolSize: 4})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}},
}

// newTestOrchestrator wires an engine with sequential session ids.
func newTestOrchestrator(store core.MembershipStore) *Orchestrator {
	o := New(store, tokenResolver{}, nil, nil)
	var seq atomic.Int64
	o.NewID = func() domain.SessionID { return domain.SessionID(fmt.Sprintf("s-%d", seq.Add(1))) }
	o.Now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return o
}

// assertConsistent checks both directions of referential integrity for ids.
func assertConsistent(t *testing.T, store core.MembershipStore, ids ...domain.ClientID) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		m, err := store.GetMember(ctx, id)
		if errors.Is(err, domain.ErrMemberNotFound) {
			continue
		}
		require.NoError(t, err)
		sess, err := store.GetSession(ctx, m.SessionID)
		require.NoError(t, err, "member %s references missing session %s", id, m.SessionID)
		assert.True(t, sess.Has(id), "session %s does not list %s", sess.ID, id)
		assert.Equal(t, m.IsHost, sess.Host == id, "host flag mismatch for %s", id)
	}
	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	for _, sess := range sessions {
		for _, id := range sess.Departures() {
			m, err := store.GetMember(ctx, id)
			require.NoError(t, err, "session %s lists %s without a member record", sess.ID, id)
			assert.Equal(t, sess.ID, m.SessionID)
		}
	}
}

// hookStore runs before ahead of every Transact call.
type hookStore struct {
	core.MembershipStore
	before func(ops []core.Op) error
}

func (h *hookStore) Transact(ctx context.Context, ops ...core.Op) error {
	if h.before != nil {
		if err := h.before(ops); err != nil {
			return err
		}
	}
	return h.MembershipStore.Transact(ctx, ops...)
}

func mockAnyContext() interface{} {
	return mock.Anything
}
