package repository

import (
	"context"
	"time"

	"event-analytics-api/internal/event/domain"
)

// ErrDuplicateEvent is returned by Insert when an event with the same event_id
// already exists. Duplicate inserts are the idempotency mechanism, not a failure.
type duplicateError struct{}

func (duplicateError) Error() string { return "duplicate event" }

// ErrDuplicateEvent is the sentinel for idempotency conflicts on insert.
var ErrDuplicateEvent error = duplicateError{}

// Filter narrows event listing. Zero values mean "no constraint".
type Filter struct {
	UserID    string
	EventType string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// DailyCount is one day's event or unique-user count.
type DailyCount struct {
	Date  string // YYYY-MM-DD
	Count int64
}

// TypeCount is an event type with its occurrence count.
type TypeCount struct {
	EventType string
	Count     int64
}

// BasicStats summarizes the hot store contents.
type BasicStats struct {
	TotalEvents int64
	UniqueUsers int64
	EventTypes  int64
}

// DateRange is the oldest and newest occurred_at in the hot store; nil when empty.
type DateRange struct {
	Oldest *time.Time
	Newest *time.Time
}

// Repository defines persistence for events in the hot store.
type Repository interface {
	// Insert persists the event. Returns ErrDuplicateEvent when the event_id
	// already exists (uniqueness is enforced at the storage layer).
	Insert(ctx context.Context, e *domain.Event) error
	// ExistsByID reports whether an event with the given id is stored. The
	// gateway checks before inserting to avoid the cost of a conflicting write;
	// the unique constraint remains the authority under races.
	ExistsByID(ctx context.Context, eventID string) (bool, error)
	GetByID(ctx context.Context, eventID string) (*domain.Event, error)
	// List returns events matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*domain.Event, error)
	// SelectArchivable returns up to limit events with
	// notOlderThan < occurred_at < olderThan, in a stable order.
	SelectArchivable(ctx context.Context, olderThan, notOlderThan time.Time, limit int) ([]*domain.Event, error)
	// DeleteByIDs removes the given events in a single transaction
	// (all-or-nothing for the batch).
	DeleteByIDs(ctx context.Context, eventIDs []string) error
	Count(ctx context.Context) (int64, error)
	// CountArchivable counts events in the archival window grouped by day.
	CountArchivable(ctx context.Context, olderThan, notOlderThan time.Time) ([]DailyCount, error)
	// DAU returns unique users per day for occurred_at in [from, to].
	DAU(ctx context.Context, from, to time.Time) ([]DailyCount, error)
	// TopEvents returns the most frequent event types for occurred_at in [from, to].
	// Zero from/to mean unbounded.
	TopEvents(ctx context.Context, from, to time.Time, limit int) ([]TypeCount, error)
	Stats(ctx context.Context) (*BasicStats, error)
	Range(ctx context.Context) (*DateRange, error)
}
