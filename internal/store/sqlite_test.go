package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/store"
	"github.com/MikeSquared-Agency/tempo/internal/store/storetest"
)

func openSQLite(t *testing.T, path string) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return openSQLite(t, filepath.Join(t.TempDir(), "tempo.db"))
	})
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tempo.db")
	ctx := context.Background()
	start := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)

	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	ev, err := s.Create(ctx, calendar.ProposedEvent{Summary: "persisted", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, s.UpsertPattern(ctx, calendar.PatternKey{Type: "exam"}, calendar.Pattern{TypicalDurationHours: 3, UpdatedAt: start}))
	s.Close()

	reopened := openSQLite(t, path)
	got, err := reopened.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Summary)

	p, ok, err := reopened.LookupPattern(ctx, calendar.PatternKey{Type: "exam"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.0, p.TypicalDurationHours)
}

func TestOpen_DefaultsToMemory(t *testing.T) {
	b, err := store.Open(context.Background(), "", "")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "memory", b.Name())
}
