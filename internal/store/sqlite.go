package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"eventpass/internal/registry"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS attendees (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	gender        TEXT NOT NULL,
	academic_year TEXT NOT NULL,
	batch         TEXT NOT NULL,
	token         TEXT NOT NULL UNIQUE,
	checked_in    INTEGER NOT NULL DEFAULT 0,
	registered_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS scan_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	token      TEXT NOT NULL,
	status     TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	scanned_at TEXT NOT NULL
);`

// SQLite is the embedded Store variant, for single-host deployments with
// no external database. Timestamps are stored as fixed-width RFC 3339 UTC
// strings so lexical ORDER BY matches chronological order.
type SQLite struct {
	pool *sqlitex.Pool
}

// storedTimeLayout pads fractional seconds to nine digits; variable-width
// fractions would break lexical ordering.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

// OpenSQLite opens (creating if needed) a SQLite database at path with
// WAL journaling and a busy timeout, and ensures the schema on every
// connection. ":memory:" is supported for tests but forces a pool of one
// since each in-memory connection is an independent database.
func OpenSQLite(path string, poolSize int) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	if poolSize <= 0 {
		poolSize = 4
	}
	if path == ":memory:" {
		poolSize = 1
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareSQLiteConn,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLite{pool: pool}, nil
}

func prepareSQLiteConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
}

// Insert persists a new attendee; the UNIQUE constraints gate email and
// token atomically with the write.
func (s *SQLite) Insert(ctx context.Context, att registry.Attendee) (registry.Attendee, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return registry.Attendee{}, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO attendees (id, name, email, gender, academic_year, batch, token, checked_in, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, &sqlitex.ExecOptions{
		Args: []any{att.ID, att.Name, att.Email, att.Gender, att.AcademicYear, att.Batch,
			att.Token, boolToInt(att.CheckedIn), att.RegisteredAt.UTC().Format(storedTimeLayout)},
	})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			if strings.Contains(err.Error(), "attendees.token") {
				return registry.Attendee{}, registry.ErrDuplicateToken
			}
			return registry.Attendee{}, registry.ErrDuplicateEmail
		}
		return registry.Attendee{}, err
	}
	return att, nil
}

// FindByEmail returns the attendee for a normalized email, nil when absent.
func (s *SQLite) FindByEmail(ctx context.Context, email string) (*registry.Attendee, error) {
	return s.findBy(ctx, "email", email)
}

// FindByToken returns the attendee holding a token, nil when absent.
func (s *SQLite) FindByToken(ctx context.Context, token string) (*registry.Attendee, error) {
	return s.findBy(ctx, "token", token)
}

func (s *SQLite) findBy(ctx context.Context, col, val string) (*registry.Attendee, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	return findAttendeeOn(conn, col, val)
}

func findAttendeeOn(conn *sqlite.Conn, col, val string) (*registry.Attendee, error) {
	var found *registry.Attendee
	err := sqlitex.Execute(conn, `
		SELECT id, name, email, gender, academic_year, batch, token, checked_in, registered_at
		FROM attendees WHERE `+col+` = ?
	`, &sqlitex.ExecOptions{
		Args: []any{val},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			att, err := readAttendee(stmt)
			if err != nil {
				return err
			}
			found = &att
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// CheckIn performs the conditional update on one connection; SQLite's
// single-writer locking makes the update-then-Changes pair atomic, so of
// any number of concurrent calls exactly one observes a changed row.
func (s *SQLite) CheckIn(ctx context.Context, token string) (registry.Attendee, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return registry.Attendee{}, false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE attendees SET checked_in = 1 WHERE token = ? AND checked_in = 0
	`, &sqlitex.ExecOptions{Args: []any{token}})
	if err != nil {
		return registry.Attendee{}, false, err
	}
	transitioned := conn.Changes() == 1

	att, err := findAttendeeOn(conn, "token", token)
	if err != nil {
		return registry.Attendee{}, false, err
	}
	if att == nil {
		return registry.Attendee{}, false, registry.ErrNotFound
	}
	return *att, transitioned, nil
}

// ListAll returns every attendee, newest registration first.
func (s *SQLite) ListAll(ctx context.Context) ([]registry.Attendee, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var res []registry.Attendee
	err = sqlitex.Execute(conn, `
		SELECT id, name, email, gender, academic_year, batch, token, checked_in, registered_at
		FROM attendees ORDER BY registered_at DESC, id
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			att, err := readAttendee(stmt)
			if err != nil {
				return err
			}
			res = append(res, att)
			return nil
		},
	})
	return res, err
}

// Stats returns aggregate attendance counts.
func (s *SQLite) Stats(ctx context.Context) (registry.Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return registry.Stats{}, err
	}
	defer s.pool.Put(conn)

	var st registry.Stats
	err = sqlitex.Execute(conn, `
		SELECT COUNT(*), COALESCE(SUM(checked_in), 0) FROM attendees
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			st.Total = int(stmt.ColumnInt64(0))
			st.CheckedIn = int(stmt.ColumnInt64(1))
			return nil
		},
	})
	if err != nil {
		return registry.Stats{}, err
	}
	st.Pending = st.Total - st.CheckedIn
	return st, nil
}

// RecordScan appends one audit entry.
func (s *SQLite) RecordScan(ctx context.Context, ev registry.ScanEvent) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, `
		INSERT INTO scan_log (token, status, name, scanned_at) VALUES (?, ?, ?, ?)
	`, &sqlitex.ExecOptions{
		Args: []any{ev.Token, string(ev.Status), ev.Name, ev.ScannedAt.UTC().Format(storedTimeLayout)},
	})
}

// ListScans returns the most recent audit entries.
func (s *SQLite) ListScans(ctx context.Context, limit int) ([]registry.ScanEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var res []registry.ScanEvent
	err = sqlitex.Execute(conn, `
		SELECT token, status, name, scanned_at FROM scan_log ORDER BY id DESC LIMIT ?
	`, &sqlitex.ExecOptions{
		Args: []any{limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			at, err := parseStoredTime(stmt.ColumnText(3))
			if err != nil {
				return err
			}
			res = append(res, registry.ScanEvent{
				Token:     stmt.ColumnText(0),
				Status:    registry.Status(stmt.ColumnText(1)),
				Name:      stmt.ColumnText(2),
				ScannedAt: at,
			})
			return nil
		},
	})
	return res, err
}

// ResetAll wipes attendees and scan log in one transaction.
func (s *SQLite) ResetAll(ctx context.Context) (err error) {
	conn, cerr := s.pool.Take(ctx)
	if cerr != nil {
		return cerr
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)
	if err = sqlitex.Execute(conn, `DELETE FROM scan_log`, nil); err != nil {
		return err
	}
	return sqlitex.Execute(conn, `DELETE FROM attendees`, nil)
}

// Close closes the pool; blocks until borrowed connections are returned.
func (s *SQLite) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

func readAttendee(stmt *sqlite.Stmt) (registry.Attendee, error) {
	at, err := parseStoredTime(stmt.ColumnText(8))
	if err != nil {
		return registry.Attendee{}, err
	}
	return registry.Attendee{
		ID:           stmt.ColumnText(0),
		Name:         stmt.ColumnText(1),
		Email:        stmt.ColumnText(2),
		Gender:       stmt.ColumnText(3),
		AcademicYear: stmt.ColumnText(4),
		Batch:        stmt.ColumnText(5),
		Token:        stmt.ColumnText(6),
		CheckedIn:    stmt.ColumnInt64(7) != 0,
		RegisteredAt: at,
	}, nil
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
