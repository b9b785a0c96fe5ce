package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"eventpass/internal/registry"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS attendees (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	gender        TEXT NOT NULL,
	academic_year TEXT NOT NULL,
	batch         TEXT NOT NULL,
	token         TEXT NOT NULL,
	checked_in    BOOLEAN NOT NULL DEFAULT FALSE,
	registered_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT attendees_email_key UNIQUE (email),
	CONSTRAINT attendees_token_key UNIQUE (token)
);
CREATE TABLE IF NOT EXISTS scan_log (
	id         BIGSERIAL PRIMARY KEY,
	token      TEXT NOT NULL,
	status     TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	scanned_at TIMESTAMPTZ NOT NULL
);`

// Postgres is the hosted relational Store, using the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with sane pool defaults and ensures the schema.
func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

const attendeeCols = `id, name, email, gender, academic_year, batch, token, checked_in, registered_at`

// Insert persists a new attendee. The unique constraints are the
// authoritative gate for email and token; violations come back as the
// corresponding registry sentinel, never a generic failure.
func (p *Postgres) Insert(ctx context.Context, att registry.Attendee) (registry.Attendee, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendees (`+attendeeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, att.ID, att.Name, att.Email, att.Gender, att.AcademicYear, att.Batch, att.Token, att.CheckedIn, att.RegisteredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "token") {
				return registry.Attendee{}, registry.ErrDuplicateToken
			}
			return registry.Attendee{}, registry.ErrDuplicateEmail
		}
		return registry.Attendee{}, err
	}
	return att, nil
}

// FindByEmail returns the attendee for a normalized email, nil when absent.
func (p *Postgres) FindByEmail(ctx context.Context, email string) (*registry.Attendee, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+attendeeCols+` FROM attendees WHERE email = $1
	`, email)
	return scanOptional(row)
}

// FindByToken returns the attendee holding a token, nil when absent.
func (p *Postgres) FindByToken(ctx context.Context, token string) (*registry.Attendee, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+attendeeCols+` FROM attendees WHERE token = $1
	`, token)
	return scanOptional(row)
}

// CheckIn flips checked_in with a single conditional update. The WHERE
// clause carries the race: of any number of concurrent calls for one
// token, exactly one matches a row and gets it back via RETURNING.
func (p *Postgres) CheckIn(ctx context.Context, token string) (registry.Attendee, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE attendees SET checked_in = TRUE
		WHERE token = $1 AND checked_in = FALSE
		RETURNING `+attendeeCols+`
	`, token)
	att, err := scanAttendee(row)
	if err == nil {
		return att, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return registry.Attendee{}, false, err
	}

	// No row transitioned: either the token is unknown or it was already
	// redeemed. Fields other than checked_in are immutable, so a plain
	// lookup settles which.
	existing, err := p.FindByToken(ctx, token)
	if err != nil {
		return registry.Attendee{}, false, err
	}
	if existing == nil {
		return registry.Attendee{}, false, registry.ErrNotFound
	}
	return *existing, false, nil
}

// ListAll returns every attendee, newest registration first.
func (p *Postgres) ListAll(ctx context.Context) ([]registry.Attendee, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+attendeeCols+` FROM attendees ORDER BY registered_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []registry.Attendee
	for rows.Next() {
		att, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, att)
	}
	return res, rows.Err()
}

// Stats returns total and checked-in counts in one round trip.
func (p *Postgres) Stats(ctx context.Context) (registry.Stats, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE checked_in) FROM attendees
	`)
	var st registry.Stats
	if err := row.Scan(&st.Total, &st.CheckedIn); err != nil {
		return registry.Stats{}, err
	}
	st.Pending = st.Total - st.CheckedIn
	return st, nil
}

// RecordScan appends one audit entry.
func (p *Postgres) RecordScan(ctx context.Context, ev registry.ScanEvent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO scan_log (token, status, name, scanned_at) VALUES ($1,$2,$3,$4)
	`, ev.Token, string(ev.Status), ev.Name, ev.ScannedAt)
	return err
}

// ListScans returns the most recent audit entries.
func (p *Postgres) ListScans(ctx context.Context, limit int) ([]registry.ScanEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT token, status, name, scanned_at FROM scan_log
		ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []registry.ScanEvent
	for rows.Next() {
		var ev registry.ScanEvent
		var status string
		if err := rows.Scan(&ev.Token, &status, &ev.Name, &ev.ScannedAt); err != nil {
			return nil, err
		}
		ev.Status = registry.Status(status)
		res = append(res, ev)
	}
	return res, rows.Err()
}

// ResetAll deletes every attendee and scan record in one transaction, so
// no partial wipe is ever observable.
func (p *Postgres) ResetAll(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_log`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attendees`); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendee(row rowScanner) (registry.Attendee, error) {
	var att registry.Attendee
	err := row.Scan(&att.ID, &att.Name, &att.Email, &att.Gender, &att.AcademicYear,
		&att.Batch, &att.Token, &att.CheckedIn, &att.RegisteredAt)
	return att, err
}

func scanOptional(row *sql.Row) (*registry.Attendee, error) {
	att, err := scanAttendee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}
