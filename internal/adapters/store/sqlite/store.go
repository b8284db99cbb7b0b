// Package sqlite is a durable MembershipStore on SQLite.
//
// The session relation is split over two tables: sessions holds the host,
// version, closing flag and creation time, session_members holds the member set one row
// per client so that set union and difference never rewrite the whole set.
// The member relation lives in members, keyed by client id.
//
// Every Transact call runs inside a single IMMEDIATE transaction. SQLite
// admits one writer at a time, so preconditions checked inside the
// transaction cannot be invalidated before commit.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	host       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	closing    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_members (
	session_id TEXT NOT NULL,
	client_id  TEXT NOT NULL,
	PRIMARY KEY (session_id, client_id)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS members (
	client_id     TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	is_host       INTEGER NOT NULL,
	client_type   INTEGER NOT NULL,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	joined_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS members_by_session ON members (session_id);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=OFF",
	"PRAGMA temp_store=MEMORY",
}

type Config struct {
	// Path of the database file. The parent directory must exist.
	Path string
	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int
}

// Store is safe for concurrent use. Each call borrows its own connection.
type Store struct {
	pool *sqlitex.Pool
	path string
}

var _ core.MembershipStore = (*Store)(nil)

// Open creates the database if needed and prepares every pooled connection
// with the standard pragmas and the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite store: Path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}
	log.Info().Str("module", "adapters.store.sqlite").Str("path", cfg.Path).Int("pool_size", poolSize).Msg("store opened")
	return &Store{pool: pool, path: cfg.Path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite store: schema: %w", err)
	}
	return nil
}

// Close blocks until all borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		log.Error().Str("module", "adapters.store.sqlite").Str("path", s.path).Err(err).Msg("close")
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	log.Info().Str("module", "adapters.store.sqlite").Str("path", s.path).Msg("store closed")
	return nil
}

func (s *Store) take(ctx context.Context, op string) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	return conn, nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (_ domain.Session, err error) {
	conn, err := s.take(ctx, "get session")
	if err != nil {
		return domain.Session{}, err
	}
	defer s.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	sess, found, err := loadSession(conn, id)
	if err != nil {
		return domain.Session{}, domain.StoreError("get session", err)
	}
	if !found {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) GetMember(ctx context.Context, id domain.ClientID) (domain.Member, error) {
	conn, err := s.take(ctx, "get member")
	if err != nil {
		return domain.Member{}, err
	}
	defer s.pool.Put(conn)

	m, found, err := loadMember(conn, id)
	if err != nil {
		return domain.Member{}, domain.StoreError("get member", err)
	}
	if !found {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return m, nil
}

func (s *Store) ListSessions(ctx context.Context) (_ []domain.Session, err error) {
	conn, err := s.take(ctx, "list sessions")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	var ids []domain.SessionID
	err = sqlitex.Execute(conn, `SELECT session_id FROM sessions ORDER BY created_at, session_id`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, domain.SessionID(stmt.ColumnText(0)))
			return nil
		},
	})
	if err != nil {
		return nil, domain.StoreError("list sessions", err)
	}
	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		sess, found, err := loadSession(conn, id)
		if err != nil {
			return nil, domain.StoreError("list sessions", err)
		}
		if found {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *Store) Transact(ctx context.Context, ops ...core.Op) (err error) {
	if len(ops) > core.MaxTransactItems {
		return domain.StoreError("transact", fmt.Errorf("%d ops exceeds limit of %d", len(ops), core.MaxTransactItems))
	}
	conn, err := s.take(ctx, "transact")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return domain.StoreError("begin transaction", err)
	}
	defer endTransaction(&err)

	for i, op := range ops {
		if err = apply(conn, op); err != nil {
			log.Debug().Str("module", "adapters.store.sqlite").Int("op", i).Err(err).Msg("transaction cancelled")
			return domain.StoreError("transact", err)
		}
	}
	return nil
}
