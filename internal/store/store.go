package store

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// Reader is the read side of the event store. Query returns events
// overlapping [from, to) ordered by start time, then id.
type Reader interface {
	Get(ctx context.Context, id string) (calendar.Event, error)
	Query(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
}

// Tx is a serialized view of the event store. Implementations guarantee that
// no other writer interleaves with the operations of one Atomic call.
type Tx interface {
	Reader
	Create(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error)
	Update(ctx context.Context, id string, start, end time.Time) (calendar.Event, error)
	Delete(ctx context.Context, id string) error
}

// Events is the persistent event collection.
type Events interface {
	Tx
	// Atomic runs fn with exclusive write access. Every mutation made through
	// the Tx is rolled back if fn returns an error.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// DeleteBefore removes events that ended before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Patterns persists learned durations and free-text feedback.
type Patterns interface {
	UpsertPattern(ctx context.Context, key calendar.PatternKey, p calendar.Pattern) error
	LookupPattern(ctx context.Context, key calendar.PatternKey) (calendar.Pattern, bool, error)
	AppendFeedback(ctx context.Context, entry calendar.FeedbackEntry) error
	PatternSnapshot(ctx context.Context) (calendar.PatternSnapshot, error)
}

// Backend is a store serving events, patterns and accounts.
type Backend interface {
	Events
	Patterns
	account.Store
	Name() string
	Close()
}
