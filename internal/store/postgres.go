package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// eventsLockKey is the advisory lock serializing calendar writers.
const eventsLockKey int64 = 0x74656d706f

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
	id         UUID PRIMARY KEY,
	summary    TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time   TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (start_time < end_time)
);
CREATE INDEX IF NOT EXISTS idx_events_range ON events (start_time, end_time);

CREATE TABLE IF NOT EXISTS duration_patterns (
	class_name             TEXT NOT NULL DEFAULT '',
	assignment_type        TEXT NOT NULL,
	typical_duration_hours DOUBLE PRECISION NOT NULL,
	notes                  TEXT NOT NULL DEFAULT '',
	updated_at             TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (class_name, assignment_type)
);

CREATE TABLE IF NOT EXISTS general_feedback (
	id       BIGSERIAL PRIMARY KEY,
	text     TEXT NOT NULL,
	added_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	email         TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	last_login    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sessions (
	token_hash  TEXT PRIMARY KEY,
	email       TEXT NOT NULL REFERENCES users(email) ON DELETE CASCADE,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	remember_me BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at);
`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Name() string { return "postgres" }

func (s *Postgres) Close() {
	s.pool.Close()
}

// Pool exposes the connection pool for maintenance and tests.
func (s *Postgres) Pool() *pgxpool.Pool {
	return s.pool
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	q pgQuerier
}

func (s *Postgres) Get(ctx context.Context, id string) (calendar.Event, error) {
	return pgTx{q: s.pool}.Get(ctx, id)
}

func (s *Postgres) Query(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	return pgTx{q: s.pool}.Query(ctx, from, to)
}

func (s *Postgres) Create(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	var ev calendar.Event
	err := s.Atomic(ctx, func(tx Tx) error {
		var err error
		ev, err = tx.Create(ctx, p)
		return err
	})
	return ev, err
}

func (s *Postgres) Update(ctx context.Context, id string, start, end time.Time) (calendar.Event, error) {
	var ev calendar.Event
	err := s.Atomic(ctx, func(tx Tx) error {
		var err error
		ev, err = tx.Update(ctx, id, start, end)
		return err
	})
	return ev, err
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	return s.Atomic(ctx, func(tx Tx) error {
		return tx.Delete(ctx, id)
	})
}

// Atomic serializes writers across every process sharing the database with a
// transaction-scoped advisory lock.
func (s *Postgres) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventsLockKey); err != nil {
		return fmt.Errorf("acquire calendar lock: %w", err)
	}
	if err := fn(pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE end_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t pgTx) Get(ctx context.Context, id string) (calendar.Event, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	row := t.q.QueryRow(ctx, `SELECT id, summary, start_time, end_time FROM events WHERE id = $1`, uid)

	var ev calendar.Event
	if err := row.Scan(&uid, &ev.Summary, &ev.Start, &ev.End); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return calendar.Event{}, fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
		}
		return calendar.Event{}, fmt.Errorf("get event: %w", err)
	}
	ev.ID = uid.String()
	return ev, nil
}

func (t pgTx) Query(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, summary, start_time, end_time FROM events
		WHERE start_time < $1 AND end_time > $2
		ORDER BY start_time, id`,
		to, from,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]calendar.Event, 0)
	for rows.Next() {
		var (
			uid uuid.UUID
			ev  calendar.Event
		)
		if err := rows.Scan(&uid, &ev.Summary, &ev.Start, &ev.End); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.ID = uid.String()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (t pgTx) Create(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	// timestamptz keeps microseconds.
	p.Start, p.End = p.Start.Truncate(time.Microsecond), p.End.Truncate(time.Microsecond)
	if err := p.Validate(); err != nil {
		return calendar.Event{}, err
	}
	id := uuid.New()
	_, err := t.q.Exec(ctx, `
		INSERT INTO events (id, summary, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		id, p.Summary, p.Start, p.End,
	)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return calendar.Event{ID: id.String(), Summary: p.Summary, Start: p.Start, End: p.End}, nil
}

func (t pgTx) Update(ctx context.Context, id string, start, end time.Time) (calendar.Event, error) {
	ev, err := t.Get(ctx, id)
	if err != nil {
		return calendar.Event{}, err
	}
	ev.Start, ev.End = start.Truncate(time.Microsecond), end.Truncate(time.Microsecond)
	if err := ev.Proposed().Validate(); err != nil {
		return calendar.Event{}, err
	}
	if _, err := t.q.Exec(ctx, `UPDATE events SET start_time = $1, end_time = $2 WHERE id = $3`,
		ev.Start, ev.End, uuid.MustParse(ev.ID)); err != nil {
		return calendar.Event{}, fmt.Errorf("update event: %w", err)
	}
	return ev, nil
}

func (t pgTx) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM events WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	return nil
}

// --- Patterns ---

// UpsertPattern creates or overwrites the learned duration for a key.
func (s *Postgres) UpsertPattern(ctx context.Context, key calendar.PatternKey, p calendar.Pattern) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO duration_patterns (class_name, assignment_type, typical_duration_hours, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_name, assignment_type)
		DO UPDATE SET
			typical_duration_hours = $3,
			notes = $4,
			updated_at = $5`,
		key.Class, key.Type, p.TypicalDurationHours, p.Notes, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

func (s *Postgres) LookupPattern(ctx context.Context, key calendar.PatternKey) (calendar.Pattern, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT typical_duration_hours, notes, updated_at FROM duration_patterns
		WHERE class_name = $1 AND assignment_type = $2`,
		key.Class, key.Type,
	)
	var p calendar.Pattern
	if err := row.Scan(&p.TypicalDurationHours, &p.Notes, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return calendar.Pattern{}, false, nil
		}
		return calendar.Pattern{}, false, fmt.Errorf("lookup pattern: %w", err)
	}
	return p, true, nil
}

func (s *Postgres) AppendFeedback(ctx context.Context, entry calendar.FeedbackEntry) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO general_feedback (text, added_at) VALUES ($1, $2)`,
		entry.Text, entry.AddedAt)
	if err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

func (s *Postgres) PatternSnapshot(ctx context.Context) (calendar.PatternSnapshot, error) {
	snap := calendar.NewPatternSnapshot()

	rows, err := s.pool.Query(ctx, `
		SELECT class_name, assignment_type, typical_duration_hours, notes, updated_at
		FROM duration_patterns`)
	if err != nil {
		return snap, fmt.Errorf("query patterns: %w", err)
	}
	for rows.Next() {
		var (
			key calendar.PatternKey
			p   calendar.Pattern
		)
		if err := rows.Scan(&key.Class, &key.Type, &p.TypicalDurationHours, &p.Notes, &p.UpdatedAt); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan pattern: %w", err)
		}
		snap.Put(key, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	fbRows, err := s.pool.Query(ctx, `SELECT text, added_at FROM general_feedback ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("query feedback: %w", err)
	}
	defer fbRows.Close()
	for fbRows.Next() {
		var entry calendar.FeedbackEntry
		if err := fbRows.Scan(&entry.Text, &entry.AddedAt); err != nil {
			return snap, fmt.Errorf("scan feedback: %w", err)
		}
		snap.GeneralFeedback = append(snap.GeneralFeedback, entry)
	}
	return snap, fbRows.Err()
}

// --- Accounts ---

func (s *Postgres) CreateUser(ctx context.Context, u account.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (email, name, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.Email, u.Name, u.PasswordHash, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", u.Email, account.ErrUserExists)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, email string) (account.User, error) {
	var u account.User
	err := s.pool.QueryRow(ctx, `
		SELECT email, name, password_hash, created_at, last_login FROM users WHERE email = $1`, email,
	).Scan(&u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.User{}, fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	}
	if err != nil {
		return account.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Postgres) TouchLogin(ctx context.Context, email string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET last_login = $1 WHERE email = $2`, at, email)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	}
	return nil
}

func (s *Postgres) CreateSession(ctx context.Context, sess account.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (token_hash, email, created_at, expires_at, remember_me) VALUES ($1, $2, $3, $4, $5)`,
		sess.TokenHash, sess.Email, sess.CreatedAt, sess.ExpiresAt, sess.RememberMe,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%s: %w", sess.Email, account.ErrUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Postgres) GetSession(ctx context.Context, tokenHash string) (account.Session, error) {
	var sess account.Session
	err := s.pool.QueryRow(ctx, `
		SELECT token_hash, email, created_at, expires_at, remember_me FROM sessions WHERE token_hash = $1`, tokenHash,
	).Scan(&sess.TokenHash, &sess.Email, &sess.CreatedAt, &sess.ExpiresAt, &sess.RememberMe)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Session{}, account.ErrSessionNotFound
	}
	if err != nil {
		return account.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Postgres) DeleteSession(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
