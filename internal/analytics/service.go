// Package analytics computes usage statistics over the hot tier. Heavier
// historical queries run against the cold tier through its own client.
package analytics

import (
	"context"
	"time"

	"event-analytics-api/internal/event/repository"
)

// HotStats is the read-only slice of the event repository analytics needs.
type HotStats interface {
	Stats(ctx context.Context) (*repository.BasicStats, error)
	DAU(ctx context.Context, from, to time.Time) ([]repository.DailyCount, error)
	TopEvents(ctx context.Context, from, to time.Time, limit int) ([]repository.TypeCount, error)
	Range(ctx context.Context) (*repository.DateRange, error)
}

// Overview is the top-level stats payload.
type Overview struct {
	TotalEvents int64      `json:"total_events"`
	UniqueUsers int64      `json:"unique_users"`
	EventTypes  int64      `json:"event_types"`
	OldestEvent *time.Time `json:"oldest_event,omitempty"`
	NewestEvent *time.Time `json:"newest_event,omitempty"`
}

// Service answers analytics queries from the hot store.
type Service struct {
	hot HotStats
	now func() time.Time
}

// NewService returns an analytics service over the hot store.
func NewService(hot HotStats) *Service {
	return &Service{hot: hot, now: time.Now}
}

// Overview returns aggregate counts and the occurred_at range of the hot tier.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	stats, err := s.hot.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := &Overview{
		TotalEvents: stats.TotalEvents,
		UniqueUsers: stats.UniqueUsers,
		EventTypes:  stats.EventTypes,
	}
	if r, err := s.hot.Range(ctx); err == nil && r != nil {
		out.OldestEvent = r.Oldest
		out.NewestEvent = r.Newest
	}
	return out, nil
}

// DAU returns daily active users over the trailing window of days (default 30).
func (s *Service) DAU(ctx context.Context, days int) ([]repository.DailyCount, error) {
	if days <= 0 {
		days = 30
	}
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)
	return s.hot.DAU(ctx, from, to)
}

// TopEvents returns the most frequent event types over the trailing window of
// days (default 30), capped at limit (default 10).
func (s *Service) TopEvents(ctx context.Context, days, limit int) ([]repository.TypeCount, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 {
		limit = 10
	}
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)
	return s.hot.TopEvents(ctx, from, to, limit)
}

// RetentionPoint is one week of a hot-tier retention series.
type RetentionPoint struct {
	Week          int     `json:"week_number"`
	RetainedUsers int64   `json:"retained_users"`
	RetentionRate float64 `json:"retention_rate"`
}

// Retention returns the hot-tier retention series. The hot window is shorter
// than a retention cohort, so this is always empty; cohort analysis runs on
// the cold tier.
func (s *Service) Retention(_ context.Context, _ int) ([]RetentionPoint, error) {
	return []RetentionPoint{}, nil
}
