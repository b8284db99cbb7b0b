package sqlite

import (
	"fmt"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func apply(conn *sqlite.Conn, op core.Op) error {
	switch op := op.(type) {
	case core.PutSession:
		return putSession(conn, op.Session)
	case core.PutMember:
		return putMember(conn, op.Member)
	case core.AddSessionMembers:
		if err := checkOpen(conn, op.SessionID); err != nil {
			return err
		}
		return updateMembers(conn, op.SessionID, op.IfVersion,
			`INSERT OR IGNORE INTO session_members (session_id, client_id) VALUES (?, ?)`, op.IDs)
	case core.RemoveSessionMembers:
		return updateMembers(conn, op.SessionID, op.IfVersion,
			`DELETE FROM session_members WHERE session_id = ? AND client_id = ?`, op.IDs)
	case core.CloseSession:
		return closeSession(conn, op.SessionID)
	case core.DeleteSession:
		return deleteSession(conn, op)
	case core.DeleteMember:
		return deleteMember(conn, op)
	default:
		return fmt.Errorf("unsupported op %T", op)
	}
}

func sessionVersion(conn *sqlite.Conn, id domain.SessionID) (version int64, found bool, err error) {
	err = sqlitex.Execute(conn, `SELECT version FROM sessions WHERE session_id = ?`, &sqlitex.ExecOptions{
		Args: []any{string(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version, found = stmt.ColumnInt64(0), true
			return nil
		},
	})
	return version, found, err
}

// checkOpen rejects joins into missing and closing sessions alike.
func checkOpen(conn *sqlite.Conn, id domain.SessionID) error {
	open := false
	err := sqlitex.Execute(conn, `SELECT closing FROM sessions WHERE session_id = ?`, &sqlitex.ExecOptions{
		Args: []any{string(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			open = stmt.ColumnInt64(0) == 0
			return nil
		},
	})
	if err != nil {
		return err
	}
	if !open {
		return domain.ErrSessionNotFound
	}
	return nil
}

func closeSession(conn *sqlite.Conn, id domain.SessionID) error {
	if err := checkSession(conn, id, 0); err != nil {
		return err
	}
	return sqlitex.Execute(conn, `UPDATE sessions SET closing = 1 WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(id)}})
}

func checkSession(conn *sqlite.Conn, id domain.SessionID, ifVersion int64) error {
	version, found, err := sessionVersion(conn, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrSessionNotFound
	}
	if ifVersion != 0 && version != ifVersion {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func putSession(conn *sqlite.Conn, sess domain.Session) error {
	_, found, err := sessionVersion(conn, sess.ID)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: session %s already exists", domain.ErrConflict, sess.ID)
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO sessions (session_id, host, version, closing, created_at) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			string(sess.ID), string(sess.Host), sess.Version, boolInt(sess.Closing), sess.CreatedAt.UnixNano(),
		}})
	if err != nil {
		return err
	}
	for _, id := range sess.Members {
		err := sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO session_members (session_id, client_id) VALUES (?, ?)`,
			&sqlitex.ExecOptions{Args: []any{string(sess.ID), string(id)}})
		if err != nil {
			return err
		}
	}
	return nil
}

func putMember(conn *sqlite.Conn, m domain.Member) error {
	_, found, err := loadMember(conn, m.ClientID)
	if err != nil {
		return err
	}
	if found {
		return domain.ErrMemberAttached
	}
	return sqlitex.Execute(conn, `
		INSERT INTO members (client_id, session_id, is_host, client_type, access_token, refresh_token, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			string(m.ClientID), string(m.SessionID), boolInt(m.IsHost), int(m.ClientType),
			m.Credential.AccessToken, m.Credential.RefreshToken, m.JoinedAt.UnixNano(),
		}})
}

func updateMembers(conn *sqlite.Conn, id domain.SessionID, ifVersion int64, query string, ids []domain.ClientID) error {
	if err := checkSession(conn, id, ifVersion); err != nil {
		return err
	}
	for _, cid := range ids {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{string(id), string(cid)}}); err != nil {
			return err
		}
	}
	return sqlitex.Execute(conn, `UPDATE sessions SET version = version + 1 WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(id)}})
}

func deleteSession(conn *sqlite.Conn, op core.DeleteSession) error {
	if op.IfVersion != 0 {
		if err := checkSession(conn, op.SessionID, op.IfVersion); err != nil {
			return err
		}
	}
	if err := sqlitex.Execute(conn, `DELETE FROM session_members WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(op.SessionID)}}); err != nil {
		return err
	}
	return sqlitex.Execute(conn, `DELETE FROM sessions WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(op.SessionID)}})
}

func deleteMember(conn *sqlite.Conn, op core.DeleteMember) error {
	if op.IfSession != "" {
		m, found, err := loadMember(conn, op.ClientID)
		if err != nil {
			return err
		}
		if !found || m.SessionID != op.IfSession {
			return domain.ErrMemberNotFound
		}
	}
	return sqlitex.Execute(conn, `DELETE FROM members WHERE client_id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(op.ClientID)}})
}

func loadSession(conn *sqlite.Conn, id domain.SessionID) (sess domain.Session, found bool, err error) {
	err = sqlitex.Execute(conn, `SELECT host, version, closing, created_at FROM sessions WHERE session_id = ?`, &sqlitex.ExecOptions{
		Args: []any{string(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			sess = domain.Session{
				ID:        id,
				Host:      domain.ClientID(stmt.ColumnText(0)),
				Version:   stmt.ColumnInt64(1),
				Closing:   stmt.ColumnInt64(2) != 0,
				CreatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
			}
			return nil
		},
	})
	if err != nil || !found {
		return domain.Session{}, found, err
	}
	sess.Members = []domain.ClientID{}
	err = sqlitex.Execute(conn, `SELECT client_id FROM session_members WHERE session_id = ? ORDER BY client_id`, &sqlitex.ExecOptions{
		Args: []any{string(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sess.Members = append(sess.Members, domain.ClientID(stmt.ColumnText(0)))
			return nil
		},
	})
	return sess, true, err
}

func loadMember(conn *sqlite.Conn, id domain.ClientID) (m domain.Member, found bool, err error) {
	err = sqlitex.Execute(conn, `
		SELECT session_id, is_host, client_type, access_token, refresh_token, joined_at
		FROM members WHERE client_id = ?`, &sqlitex.ExecOptions{
		Args: []any{string(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			m = domain.Member{
				ClientID:   id,
				SessionID:  domain.SessionID(stmt.ColumnText(0)),
				IsHost:     stmt.ColumnInt64(1) != 0,
				ClientType: domain.ClientType(stmt.ColumnInt64(2)),
				Credential: domain.Credential{
					AccessToken:  stmt.ColumnText(3),
					RefreshToken: stmt.ColumnText(4),
				},
				JoinedAt: time.Unix(0, stmt.ColumnInt64(5)).UTC(),
			}
			return nil
		},
	})
	return m, found, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
