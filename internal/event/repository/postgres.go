package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"event-analytics-api/internal/event/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an event repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const eventColumns = "event_id, user_id, event_type, occurred_at, properties, created_at"

// Insert persists the event. A unique violation on event_id is reported as
// ErrDuplicateEvent so the caller can treat the insert as a no-op.
func (r *PostgresRepository) Insert(ctx context.Context, e *domain.Event) error {
	props, err := e.PropertiesJSON()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (event_id, user_id, event_type, occurred_at, properties, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.EventID, e.UserID, e.EventType, e.OccurredAt, props, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// ExistsByID reports whether an event with the given id is already stored.
func (r *PostgresRepository) ExistsByID(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM events WHERE event_id = $1)", eventID,
	).Scan(&exists)
	return exists, err
}

// GetByID returns the event for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, eventID string) (*domain.Event, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE event_id = $1", eventID)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// List returns events matching the filter, ordered by occurred_at descending.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*domain.Event, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}

	q := "SELECT " + eventColumns + " FROM events"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SelectArchivable returns up to limit events strictly inside the archival
// window, ordered by occurred_at so successive batches make forward progress.
func (r *PostgresRepository) SelectArchivable(ctx context.Context, olderThan, notOlderThan time.Time, limit int) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+eventColumns+` FROM events
		 WHERE occurred_at < $1 AND occurred_at > $2
		 ORDER BY occurred_at, event_id
		 LIMIT $3`,
		olderThan, notOlderThan, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// DeleteByIDs removes the given events in one transaction. Either every id in
// the batch is deleted or none are.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(eventIDs))
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err = tx.ExecContext(ctx,
		"DELETE FROM events WHERE event_id IN ("+strings.Join(placeholders, ", ")+")",
		args...,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Count returns the total number of events in the hot store.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// CountArchivable counts events in the archival window grouped by day, oldest first.
func (r *PostgresRepository) CountArchivable(ctx context.Context, olderThan, notOlderThan time.Time) ([]DailyCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(occurred_at::date, 'YYYY-MM-DD'), COUNT(*)
		 FROM events
		 WHERE occurred_at < $1 AND occurred_at > $2
		 GROUP BY occurred_at::date
		 ORDER BY occurred_at::date`,
		olderThan, notOlderThan,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDailyCounts(rows)
}

// DAU returns the number of unique users per day for occurred_at in [from, to].
func (r *PostgresRepository) DAU(ctx context.Context, from, to time.Time) ([]DailyCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(occurred_at::date, 'YYYY-MM-DD'), COUNT(DISTINCT user_id)
		 FROM events
		 WHERE occurred_at >= $1 AND occurred_at <= $2
		 GROUP BY occurred_at::date
		 ORDER BY occurred_at::date`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDailyCounts(rows)
}

// TopEvents returns the most frequent event types, optionally bounded by [from, to].
func (r *PostgresRepository) TopEvents(ctx context.Context, from, to time.Time, limit int) ([]TypeCount, error) {
	if limit <= 0 {
		limit = 10
	}
	q := "SELECT event_type, COUNT(*) FROM events"
	var args []any
	if !from.IsZero() && !to.IsZero() {
		q += " WHERE occurred_at >= $1 AND occurred_at <= $2"
		args = append(args, from, to)
	}
	args = append(args, limit)
	q += fmt.Sprintf(" GROUP BY event_type ORDER BY COUNT(*) DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Stats returns totals for events, unique users, and distinct event types.
func (r *PostgresRepository) Stats(ctx context.Context) (*BasicStats, error) {
	var s BasicStats
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT user_id), COUNT(DISTINCT event_type) FROM events",
	).Scan(&s.TotalEvents, &s.UniqueUsers, &s.EventTypes)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Range returns the oldest and newest occurred_at in the hot store.
func (r *PostgresRepository) Range(ctx context.Context) (*DateRange, error) {
	var oldest, newest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT MIN(occurred_at), MAX(occurred_at) FROM events",
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, err
	}
	dr := &DateRange{}
	if oldest.Valid {
		dr.Oldest = &oldest.Time
	}
	if newest.Valid {
		dr.Newest = &newest.Time
	}
	return dr, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var e domain.Event
	var props string
	if err := row.Scan(&e.EventID, &e.UserID, &e.EventType, &e.OccurredAt, &props, &e.CreatedAt); err != nil {
		return nil, err
	}
	m, err := domain.ParseProperties(props)
	if err != nil {
		return nil, err
	}
	e.Properties = m
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanDailyCounts(rows *sql.Rows) ([]DailyCount, error) {
	var out []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
