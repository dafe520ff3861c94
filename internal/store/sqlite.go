package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id       TEXT PRIMARY KEY,
	summary  TEXT NOT NULL,
	start_ms INTEGER NOT NULL,
	end_ms   INTEGER NOT NULL,
	CHECK (start_ms < end_ms)
);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_ms);
CREATE INDEX IF NOT EXISTS idx_events_end ON events(end_ms);

CREATE TABLE IF NOT EXISTS duration_patterns (
	class_name             TEXT NOT NULL DEFAULT '',
	assignment_type        TEXT NOT NULL,
	typical_duration_hours REAL NOT NULL,
	notes                  TEXT NOT NULL DEFAULT '',
	updated_ms             INTEGER NOT NULL,
	PRIMARY KEY (class_name, assignment_type)
);

CREATE TABLE IF NOT EXISTS general_feedback (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	text     TEXT NOT NULL,
	added_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	email         TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_ms    INTEGER NOT NULL,
	last_login_ms INTEGER
);

CREATE TABLE IF NOT EXISTS sessions (
	token_hash  TEXT PRIMARY KEY,
	email       TEXT NOT NULL REFERENCES users(email) ON DELETE CASCADE,
	created_ms  INTEGER NOT NULL,
	expires_ms  INTEGER NOT NULL,
	remember_me INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_ms);
`

// SQLite persists events, patterns and accounts in a single database file.
// Writers are serialized by mu; WAL mode keeps readers unblocked.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Close() {
	_ = s.db.Close()
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteTx struct {
	q sqlQuerier
}

func (s *SQLite) Get(ctx context.Context, id string) (calendar.Event, error) {
	return sqliteTx{q: s.db}.Get(ctx, id)
}

func (s *SQLite) Query(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	return sqliteTx{q: s.db}.Query(ctx, from, to)
}

func (s *SQLite) Create(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	var ev calendar.Event
	err := s.Atomic(ctx, func(tx Tx) error {
		var err error
		ev, err = tx.Create(ctx, p)
		return err
	})
	return ev, err
}

func (s *SQLite) Update(ctx context.Context, id string, start, end time.Time) (calendar.Event, error) {
	var ev calendar.Event
	err := s.Atomic(ctx, func(tx Tx) error {
		var err error
		ev, err = tx.Update(ctx, id, start, end)
		return err
	})
	return ev, err
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	return s.Atomic(ctx, func(tx Tx) error {
		return tx.Delete(ctx, id)
	})
}

func (s *SQLite) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(sqliteTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE end_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t sqliteTx) Get(ctx context.Context, id string) (calendar.Event, error) {
	row := t.q.QueryRowContext(ctx, `SELECT id, summary, start_ms, end_ms FROM events WHERE id = ?`, id)
	var (
		ev             calendar.Event
		startMs, endMs int64
	)
	if err := row.Scan(&ev.ID, &ev.Summary, &startMs, &endMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calendar.Event{}, fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
		}
		return calendar.Event{}, fmt.Errorf("get event: %w", err)
	}
	ev.Start, ev.End = time.UnixMilli(startMs).UTC(), time.UnixMilli(endMs).UTC()
	return ev, nil
}

func (t sqliteTx) Query(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, summary, start_ms, end_ms FROM events
		WHERE start_ms < ? AND end_ms > ?
		ORDER BY start_ms, id`,
		to.UnixMilli(), from.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]calendar.Event, 0)
	for rows.Next() {
		var (
			ev             calendar.Event
			startMs, endMs int64
		)
		if err := rows.Scan(&ev.ID, &ev.Summary, &startMs, &endMs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Start, ev.End = time.UnixMilli(startMs).UTC(), time.UnixMilli(endMs).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (t sqliteTx) Create(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	p.Start, p.End = msTime(p.Start), msTime(p.End)
	if err := p.Validate(); err != nil {
		return calendar.Event{}, err
	}
	ev := calendar.Event{ID: uuid.New().String(), Summary: p.Summary, Start: p.Start, End: p.End}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO events (id, summary, start_ms, end_ms) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.Summary, ev.Start.UnixMilli(), ev.End.UnixMilli(),
	)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

func (t sqliteTx) Update(ctx context.Context, id string, start, end time.Time) (calendar.Event, error) {
	ev, err := t.Get(ctx, id)
	if err != nil {
		return calendar.Event{}, err
	}
	ev.Start, ev.End = msTime(start), msTime(end)
	if err := ev.Proposed().Validate(); err != nil {
		return calendar.Event{}, err
	}
	_, err = t.q.ExecContext(ctx,
		`UPDATE events SET start_ms = ?, end_ms = ? WHERE id = ?`,
		ev.Start.UnixMilli(), ev.End.UnixMilli(), id,
	)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("update event: %w", err)
	}
	return ev, nil
}

// msTime is t as it reads back from the millisecond columns.
func msTime(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

func (t sqliteTx) Delete(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	return nil
}

// --- Patterns ---

func (s *SQLite) UpsertPattern(ctx context.Context, key calendar.PatternKey, p calendar.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duration_patterns (class_name, assignment_type, typical_duration_hours, notes, updated_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (class_name, assignment_type)
		DO UPDATE SET
			typical_duration_hours = excluded.typical_duration_hours,
			notes = excluded.notes,
			updated_ms = excluded.updated_ms`,
		key.Class, key.Type, p.TypicalDurationHours, p.Notes, p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

func (s *SQLite) LookupPattern(ctx context.Context, key calendar.PatternKey) (calendar.Pattern, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT typical_duration_hours, notes, updated_ms FROM duration_patterns
		WHERE class_name = ? AND assignment_type = ?`,
		key.Class, key.Type,
	)
	var (
		p         calendar.Pattern
		updatedMs int64
	)
	if err := row.Scan(&p.TypicalDurationHours, &p.Notes, &updatedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calendar.Pattern{}, false, nil
		}
		return calendar.Pattern{}, false, fmt.Errorf("lookup pattern: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return p, true, nil
}

func (s *SQLite) AppendFeedback(ctx context.Context, entry calendar.FeedbackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO general_feedback (text, added_ms) VALUES (?, ?)`,
		entry.Text, entry.AddedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

func (s *SQLite) PatternSnapshot(ctx context.Context) (calendar.PatternSnapshot, error) {
	snap := calendar.NewPatternSnapshot()

	rows, err := s.db.QueryContext(ctx, `
		SELECT class_name, assignment_type, typical_duration_hours, notes, updated_ms
		FROM duration_patterns`)
	if err != nil {
		return snap, fmt.Errorf("query patterns: %w", err)
	}
	for rows.Next() {
		var (
			key       calendar.PatternKey
			p         calendar.Pattern
			updatedMs int64
		)
		if err := rows.Scan(&key.Class, &key.Type, &p.TypicalDurationHours, &p.Notes, &updatedMs); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan pattern: %w", err)
		}
		p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		snap.Put(key, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	fbRows, err := s.db.QueryContext(ctx, `SELECT text, added_ms FROM general_feedback ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("query feedback: %w", err)
	}
	defer fbRows.Close()
	for fbRows.Next() {
		var (
			entry   calendar.FeedbackEntry
			addedMs int64
		)
		if err := fbRows.Scan(&entry.Text, &addedMs); err != nil {
			return snap, fmt.Errorf("scan feedback: %w", err)
		}
		entry.AddedAt = time.UnixMilli(addedMs).UTC()
		snap.GeneralFeedback = append(snap.GeneralFeedback, entry)
	}
	return snap, fbRows.Err()
}

// --- Accounts ---

func (s *SQLite) CreateUser(ctx context.Context, u account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, password_hash, created_ms) VALUES (?, ?, ?, ?)`,
		u.Email, u.Name, u.PasswordHash, u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%s: %w", u.Email, account.ErrUserExists)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLite) GetUser(ctx context.Context, email string) (account.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT email, name, password_hash, created_ms, last_login_ms FROM users WHERE email = ?`, email)
	var (
		u         account.User
		createdMs int64
		loginMs   sql.NullInt64
	)
	if err := row.Scan(&u.Email, &u.Name, &u.PasswordHash, &createdMs, &loginMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.User{}, fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
		}
		return account.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdMs).UTC()
	if loginMs.Valid {
		at := time.UnixMilli(loginMs.Int64).UTC()
		u.LastLogin = &at
	}
	return u, nil
}

func (s *SQLite) TouchLogin(ctx context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_ms = ? WHERE email = ?`, at.UnixMilli(), email)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	}
	return nil
}

func (s *SQLite) CreateSession(ctx context.Context, sess account.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, email, created_ms, expires_ms, remember_me) VALUES (?, ?, ?, ?, ?)`,
		sess.TokenHash, sess.Email, sess.CreatedAt.UnixMilli(), sess.ExpiresAt.UnixMilli(), sess.RememberMe,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%s: %w", sess.Email, account.ErrUserNotFound)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLite) GetSession(ctx context.Context, tokenHash string) (account.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token_hash, email, created_ms, expires_ms, remember_me FROM sessions WHERE token_hash = ?`, tokenHash)
	var (
		sess                 account.Session
		createdMs, expiresMs int64
	)
	if err := row.Scan(&sess.TokenHash, &sess.Email, &createdMs, &expiresMs, &sess.RememberMe); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Session{}, account.ErrSessionNotFound
		}
		return account.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = time.UnixMilli(createdMs).UTC()
	sess.ExpiresAt = time.UnixMilli(expiresMs).UTC()
	return sess, nil
}

func (s *SQLite) DeleteSession(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLite) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_ms <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
