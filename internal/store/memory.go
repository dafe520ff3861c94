package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// Memory is an in-process backend. It loses state on restart and is meant
// for tests and single-node development.
type Memory struct {
	mu       sync.RWMutex
	events   map[string]calendar.Event
	patterns map[calendar.PatternKey]calendar.Pattern
	feedback []calendar.FeedbackEntry
	users    map[string]account.User
	sessions map[string]account.Session
}

func NewMemory() *Memory {
	return &Memory{
		events:   make(map[string]calendar.Event),
		patterns: make(map[calendar.PatternKey]calendar.Pattern),
		users:    make(map[string]account.User),
		sessions: make(map[string]account.Session),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Close() {}

func (m *Memory) Get(ctx context.Context, id string) (calendar.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memTx{m: m}).Get(ctx, id)
}

func (m *Memory) Query(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memTx{m: m}).Query(ctx, from, to)
}

func (m *Memory) Create(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	var ev calendar.Event
	err := m.Atomic(ctx, func(tx Tx) error {
		var err error
		ev, err = tx.Create(ctx, p)
		return err
	})
	return ev, err
}

func (m *Memory) Update(ctx context.Context, id string, start, end time.Time) (calendar.Event, error) {
	var ev calendar.Event
	err := m.Atomic(ctx, func(tx Tx) error {
		var err error
		ev, err = tx.Update(ctx, id, start, end)
		return err
	})
	return ev, err
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	return m.Atomic(ctx, func(tx Tx) error {
		return tx.Delete(ctx, id)
	})
}

func (m *Memory) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *Memory) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, ev := range m.events {
		if ev.End.Before(cutoff) {
			delete(m.events, id)
			n++
		}
	}
	return n, nil
}

// memTx applies writes directly and keeps an undo log for rollback.
// The caller holds m.mu.
type memTx struct {
	m    *Memory
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) Get(_ context.Context, id string) (calendar.Event, error) {
	ev, ok := t.m.events[id]
	if !ok {
		return calendar.Event{}, fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	return ev, nil
}

func (t *memTx) Query(_ context.Context, from, to time.Time) ([]calendar.Event, error) {
	window := calendar.Interval{Start: from, End: to}
	out := make([]calendar.Event, 0)
	for _, ev := range t.m.events {
		if ev.Interval().Overlaps(window) {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (t *memTx) Create(_ context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	if err := p.Validate(); err != nil {
		return calendar.Event{}, err
	}
	ev := calendar.Event{ID: uuid.New().String(), Summary: p.Summary, Start: p.Start, End: p.End}
	t.m.events[ev.ID] = ev
	t.undo = append(t.undo, func() { delete(t.m.events, ev.ID) })
	return ev, nil
}

func (t *memTx) Update(_ context.Context, id string, start, end time.Time) (calendar.Event, error) {
	prev, ok := t.m.events[id]
	if !ok {
		return calendar.Event{}, fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	next := prev
	next.Start, next.End = start, end
	if err := next.Proposed().Validate(); err != nil {
		return calendar.Event{}, err
	}
	t.m.events[id] = next
	t.undo = append(t.undo, func() { t.m.events[id] = prev })
	return next, nil
}

func (t *memTx) Delete(_ context.Context, id string) error {
	prev, ok := t.m.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	delete(t.m.events, id)
	t.undo = append(t.undo, func() { t.m.events[id] = prev })
	return nil
}

// --- Patterns ---

func (m *Memory) UpsertPattern(_ context.Context, key calendar.PatternKey, p calendar.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[key] = p
	return nil
}

func (m *Memory) LookupPattern(_ context.Context, key calendar.PatternKey) (calendar.Pattern, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patterns[key]
	return p, ok, nil
}

func (m *Memory) AppendFeedback(_ context.Context, entry calendar.FeedbackEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, entry)
	return nil
}

func (m *Memory) PatternSnapshot(_ context.Context) (calendar.PatternSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := calendar.NewPatternSnapshot()
	for key, p := range m.patterns {
		snap.Put(key, p)
	}
	snap.GeneralFeedback = append(snap.GeneralFeedback, m.feedback...)
	return snap, nil
}

func sortEvents(events []calendar.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}

// --- Accounts ---

func (m *Memory) CreateUser(_ context.Context, u account.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return fmt.Errorf("%s: %w", u.Email, account.ErrUserExists)
	}
	m.users[u.Email] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, email string) (account.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	if !ok {
		return account.User{}, fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	}
	return u, nil
}

func (m *Memory) TouchLogin(_ context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return fmt.Errorf("%s: %w", email, account.ErrUserNotFound)
	}
	u.LastLogin = &at
	m.users[email] = u
	return nil
}

func (m *Memory) CreateSession(_ context.Context, s account.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[s.Email]; !ok {
		return fmt.Errorf("%s: %w", s.Email, account.ErrUserNotFound)
	}
	m.sessions[s.TokenHash] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, tokenHash string) (account.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return account.Session{}, account.ErrSessionNotFound
	}
	return s, nil
}

func (m *Memory) DeleteSession(_ context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[tokenHash]
	delete(m.sessions, tokenHash)
	return ok, nil
}

func (m *Memory) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for hash, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}
