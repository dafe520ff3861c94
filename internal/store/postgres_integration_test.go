//go:build integration

package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/tempo/internal/store"
	"github.com/MikeSquared-Agency/tempo/internal/store/storetest"
)

func TestIntegration_Postgres(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	storetest.Run(t, func(t *testing.T) store.Backend {
		ctx := context.Background()
		s, err := store.NewPostgres(ctx, dbURL)
		require.NoError(t, err)
		// Each subtest starts from empty tables.
		_, err = s.Pool().Exec(ctx, "TRUNCATE events, duration_patterns, general_feedback, sessions, users")
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}
