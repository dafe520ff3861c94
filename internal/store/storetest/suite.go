// Package storetest is a compliance suite shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

var base = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func proposed(summary string, start, end time.Time) calendar.ProposedEvent {
	return calendar.ProposedEvent{Summary: summary, Start: start, End: end}
}

// Run exercises a backend. makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Backend) {
	t.Run("CreateGetQuery", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()

		b, err := s.Create(ctx, proposed("b", at(11, 0), at(12, 0)))
		require.NoError(t, err)
		a, err := s.Create(ctx, proposed("a", at(9, 0), at(10, 0)))
		require.NoError(t, err)
		_, err = s.Create(ctx, proposed("next day", at(33, 0), at(34, 0)))
		require.NoError(t, err)
		require.NotEqual(t, a.ID, b.ID)

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Summary)
		assert.True(t, got.Start.Equal(at(9, 0)))
		assert.True(t, got.End.Equal(at(10, 0)))

		events, err := s.Query(ctx, at(0, 0), at(24, 0))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, a.ID, events[0].ID)
		assert.Equal(t, b.ID, events[1].ID)
	})

	t.Run("QueryIsHalfOpen", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, proposed("touching", at(9, 0), at(10, 0)))
		require.NoError(t, err)

		events, err := s.Query(ctx, at(10, 0), at(11, 0))
		require.NoError(t, err)
		assert.Empty(t, events)

		events, err = s.Query(ctx, at(9, 59), at(11, 0))
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("RejectsInvertedInterval", func(t *testing.T) {
		s := makeStore(t)
		_, err := s.Create(context.Background(), proposed("bad", at(10, 0), at(9, 0)))
		assert.ErrorIs(t, err, calendar.ErrValidation)
	})

	t.Run("ReturnedTimesMatchStored", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()
		start := at(9, 0).Add(123456789 * time.Nanosecond)

		created, err := s.Create(ctx, proposed("precise", start, start.Add(time.Hour+987654*time.Nanosecond)))
		require.NoError(t, err)
		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.Start.Equal(created.Start), "created %s, stored %s", created.Start, got.Start)
		assert.True(t, got.End.Equal(created.End), "created %s, stored %s", created.End, got.End)
		assert.True(t, start.Truncate(time.Millisecond).Equal(created.Start.Truncate(time.Millisecond)))

		moved, err := s.Update(ctx, created.ID, start.Add(2*time.Hour), start.Add(3*time.Hour))
		require.NoError(t, err)
		got, err = s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.Start.Equal(moved.Start), "updated %s, stored %s", moved.Start, got.Start)
		assert.True(t, got.End.Equal(moved.End))
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()

		ev, err := s.Create(ctx, proposed("move me", at(9, 0), at(10, 0)))
		require.NoError(t, err)

		moved, err := s.Update(ctx, ev.ID, at(14, 0), at(15, 30))
		require.NoError(t, err)
		assert.Equal(t, "move me", moved.Summary)

		got, err := s.Get(ctx, ev.ID)
		require.NoError(t, err)
		assert.True(t, got.Start.Equal(at(14, 0)))
		assert.True(t, got.End.Equal(at(15, 30)))

		require.NoError(t, s.Delete(ctx, ev.ID))
		_, err = s.Get(ctx, ev.ID)
		assert.ErrorIs(t, err, calendar.ErrNotFound)
	})

	t.Run("UnknownIDIsNotFound", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()
		missing := "00000000-0000-0000-0000-000000000042"

		assert.ErrorIs(t, s.Delete(ctx, missing), calendar.ErrNotFound)
		_, err := s.Update(ctx, missing, at(1, 0), at(2, 0))
		assert.ErrorIs(t, err, calendar.ErrNotFound)
	})

	t.Run("AtomicRollsBack", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()

		keep, err := s.Create(ctx, proposed("keep", at(9, 0), at(10, 0)))
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.Atomic(ctx, func(tx store.Tx) error {
			if _, err := tx.Create(ctx, proposed("ghost", at(12, 0), at(13, 0))); err != nil {
				return err
			}
			if _, err := tx.Update(ctx, keep.ID, at(16, 0), at(17, 0)); err != nil {
				return err
			}
			if err := tx.Delete(ctx, keep.ID); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		events, err := s.Query(ctx, at(0, 0), at(24, 0))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, keep.ID, events[0].ID)
		assert.True(t, events[0].Start.Equal(at(9, 0)))
	})

	t.Run("AtomicCheckThenCreateIsSerialized", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Atomic(ctx, func(tx store.Tx) error {
					existing, err := tx.Query(ctx, at(10, 0), at(11, 0))
					if err != nil {
						return err
					}
					if len(existing) > 0 {
						return nil
					}
					_, err = tx.Create(ctx, proposed("race", at(10, 0), at(11, 0)))
					return err
				})
				if err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		events, err := s.Query(ctx, at(0, 0), at(24, 0))
		require.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, workers, created)
	})

	t.Run("DeleteBefore", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, proposed("old", at(1, 0), at(2, 0)))
		require.NoError(t, err)
		_, err = s.Create(ctx, proposed("new", at(5, 0), at(6, 0)))
		require.NoError(t, err)

		n, err := s.DeleteBefore(ctx, at(3, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		events, err := s.Query(ctx, at(0, 0), at(24, 0))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "new", events[0].Summary)
	})

	t.Run("Patterns", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()
		now := base

		classKey := calendar.PatternKey{Class: "CS 101", Type: "homework"}
		typeKey := calendar.PatternKey{Type: "lab"}

		_, ok, err := s.LookupPattern(ctx, classKey)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.UpsertPattern(ctx, classKey, calendar.Pattern{TypicalDurationHours: 3, Notes: "first", UpdatedAt: now}))
		require.NoError(t, s.UpsertPattern(ctx, classKey, calendar.Pattern{TypicalDurationHours: 4, Notes: "second", UpdatedAt: now.Add(time.Hour)}))
		require.NoError(t, s.UpsertPattern(ctx, typeKey, calendar.Pattern{TypicalDurationHours: 2, UpdatedAt: now}))

		p, ok, err := s.LookupPattern(ctx, classKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 4.0, p.TypicalDurationHours)
		assert.Equal(t, "second", p.Notes)

		require.NoError(t, s.AppendFeedback(ctx, calendar.FeedbackEntry{Text: "no meetings before 9", AddedAt: now}))
		require.NoError(t, s.AppendFeedback(ctx, calendar.FeedbackEntry{Text: "prefer evenings", AddedAt: now.Add(time.Minute)}))

		snap, err := s.PatternSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4.0, snap.ClassPatterns["CS 101"]["homework"].TypicalDurationHours)
		assert.Equal(t, 2.0, snap.AssignmentTypePatterns["lab"].TypicalDurationHours)
		require.Len(t, snap.GeneralFeedback, 2)
		assert.Equal(t, "no meetings before 9", snap.GeneralFeedback[0].Text)
		assert.Equal(t, "prefer evenings", snap.GeneralFeedback[1].Text)
	})

	t.Run("Accounts", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()
		now := at(8, 0)

		u := account.User{Email: "ada@example.com", Name: "ada", PasswordHash: "hash", CreatedAt: now}
		require.NoError(t, s.CreateUser(ctx, u))
		assert.ErrorIs(t, s.CreateUser(ctx, u), account.ErrUserExists)

		got, err := s.GetUser(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash", got.PasswordHash)
		assert.True(t, got.CreatedAt.Equal(now))
		assert.Nil(t, got.LastLogin)

		require.NoError(t, s.TouchLogin(ctx, "ada@example.com", now.Add(time.Hour)))
		got, err = s.GetUser(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.True(t, got.LastLogin.Equal(now.Add(time.Hour)))

		_, err = s.GetUser(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, account.ErrUserNotFound)
		assert.ErrorIs(t, s.TouchLogin(ctx, "nobody@example.com", now), account.ErrUserNotFound)
	})

	t.Run("Sessions", func(t *testing.T) {
		s := makeStore(t)
		ctx := context.Background()
		now := at(8, 0)

		require.NoError(t, s.CreateUser(ctx, account.User{Email: "ada@example.com", Name: "ada", PasswordHash: "hash", CreatedAt: now}))
		short := account.Session{TokenHash: "short", Email: "ada@example.com", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		long := account.Session{TokenHash: "long", Email: "ada@example.com", CreatedAt: now, ExpiresAt: now.Add(48 * time.Hour), RememberMe: true}
		require.NoError(t, s.CreateSession(ctx, short))
		require.NoError(t, s.CreateSession(ctx, long))

		err := s.CreateSession(ctx, account.Session{TokenHash: "orphan", Email: "nobody@example.com", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
		assert.ErrorIs(t, err, account.ErrUserNotFound)

		got, err := s.GetSession(ctx, "long")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.True(t, got.RememberMe)
		assert.True(t, got.ExpiresAt.Equal(now.Add(48*time.Hour)))

		n, err := s.DeleteExpiredSessions(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = s.GetSession(ctx, "short")
		assert.ErrorIs(t, err, account.ErrSessionNotFound)

		ok, err := s.DeleteSession(ctx, "long")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.DeleteSession(ctx, "long")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
