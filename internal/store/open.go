package store

import "context"

// Open picks a backend: Postgres when databaseURL is set, SQLite when
// sqlitePath is set, otherwise an in-memory store.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Backend, error) {
	switch {
	case databaseURL != "":
		return NewPostgres(ctx, databaseURL)
	case sqlitePath != "":
		return OpenSQLite(sqlitePath)
	default:
		return NewMemory(), nil
	}
}
