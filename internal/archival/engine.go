// Package archival moves aged events from the hot relational tier to the cold
// columnar tier in batches. The single hard rule is write ordering: a batch is
// deleted from the hot store only after the cold store has acknowledged it, so
// a failure can leave an event in both tiers but never in neither.
package archival

import (
	"context"
	"fmt"
	"log"
	"time"

	"event-analytics-api/internal/coldstore"
	"event-analytics-api/internal/event/domain"
	"event-analytics-api/internal/event/repository"
	"event-analytics-api/internal/metrics"
)

// HotStore is the slice of the event repository the engine needs.
type HotStore interface {
	SelectArchivable(ctx context.Context, olderThan, notOlderThan time.Time, limit int) ([]*domain.Event, error)
	DeleteByIDs(ctx context.Context, eventIDs []string) error
	CountArchivable(ctx context.Context, olderThan, notOlderThan time.Time) ([]repository.DailyCount, error)
	Stats(ctx context.Context) (*repository.BasicStats, error)
	Range(ctx context.Context) (*repository.DateRange, error)
}

// ColdStore is the slice of the cold tier client the engine needs.
type ColdStore interface {
	InsertBatch(ctx context.Context, rows []coldstore.Row) error
	Ping(ctx context.Context) bool
	Stats(ctx context.Context) (*coldstore.AggregateStats, error)
}

// Config tunes the archival window and batching.
type Config struct {
	// HotRetentionDays is how long events stay hot. Events younger than this
	// are never archived.
	HotRetentionDays int
	// MaxArchiveAgeDays caps the window: events older than this are left
	// alone (they predate the archival policy or were already handled).
	MaxArchiveAgeDays int
	// BatchSize is the number of events moved per batch.
	BatchSize int
	// BatchDelay is an optional pause between batches to cap load on the
	// hot store during large backfills.
	BatchDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.HotRetentionDays <= 0 {
		c.HotRetentionDays = 7
	}
	if c.MaxArchiveAgeDays <= 0 {
		c.MaxArchiveAgeDays = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 100 * time.Millisecond
	}
	return c
}

// window returns the archival bounds for a run starting at now:
// notOlderThan < occurred_at < olderThan.
func (c Config) window(now time.Time) (olderThan, notOlderThan time.Time) {
	olderThan = now.AddDate(0, 0, -c.HotRetentionDays)
	notOlderThan = now.AddDate(0, 0, -c.MaxArchiveAgeDays)
	return olderThan, notOlderThan
}

// Run records the outcome of one archival pass. Errors accumulate; a run with
// errors still completes and reports what it managed to move.
type Run struct {
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	DurationSeconds  float64   `json:"duration_seconds"`
	EventsProcessed  int       `json:"events_processed"`
	EventsArchived   int       `json:"events_archived"`
	EventsDeleted    int       `json:"events_deleted"`
	BatchesProcessed int       `json:"batches_processed"`
	Errors           []string  `json:"errors"`
}

func (r *Run) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Engine orchestrates archival passes over the two tiers.
type Engine struct {
	hot  HotStore
	cold ColdStore
	cfg  Config
	log  *log.Logger
	now  func() time.Time
}

// NewEngine returns an archival engine. A nil logger falls back to the default.
func NewEngine(hot HotStore, cold ColdStore, cfg Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		hot:  hot,
		cold: cold,
		cfg:  cfg.withDefaults(),
		log:  logger,
		now:  time.Now,
	}
}

// ArchiveOldEvents runs one archival pass: batches of events inside the window
// are copied to the cold store and then deleted from the hot store. The pass
// stops early when a batch cannot make progress, recording why; it always
// returns a completed Run and never panics.
func (e *Engine) ArchiveOldEvents(ctx context.Context) *Run {
	run := &Run{StartedAt: e.now().UTC()}
	defer func() {
		if rec := recover(); rec != nil {
			run.addError("archival pass panicked: %v", rec)
			e.log.Printf("archival: recovered panic: %v", rec)
		}
		run.CompletedAt = e.now().UTC()
		run.DurationSeconds = run.CompletedAt.Sub(run.StartedAt).Seconds()
		metrics.ArchivalRuns.Inc()
		metrics.ArchivalEventsMoved.Add(float64(run.EventsDeleted))
	}()

	olderThan, notOlderThan := e.cfg.window(run.StartedAt)
	e.log.Printf("archival: pass started, window %s .. %s, batch size %d",
		notOlderThan.Format(time.RFC3339), olderThan.Format(time.RFC3339), e.cfg.BatchSize)

	for {
		if err := ctx.Err(); err != nil {
			run.addError("pass cancelled: %v", err)
			break
		}

		events, err := e.hot.SelectArchivable(ctx, olderThan, notOlderThan, e.cfg.BatchSize)
		if err != nil {
			run.addError("select batch: %v", err)
			metrics.ArchivalBatchErrors.Inc()
			break
		}
		if len(events) == 0 {
			break
		}
		run.EventsProcessed += len(events)

		ingestedAt := e.now()
		rows := make([]coldstore.Row, 0, len(events))
		ids := make([]string, 0, len(events))
		for _, ev := range events {
			row, err := coldstore.RowFromEvent(ev, ingestedAt)
			if err != nil {
				// The event stays hot rather than being lost; it will be
				// retried on the next pass.
				run.addError("encode event %s: %v", ev.EventID, err)
				continue
			}
			rows = append(rows, row)
			ids = append(ids, ev.EventID)
		}
		if len(rows) == 0 {
			break
		}

		if err := e.cold.InsertBatch(ctx, rows); err != nil {
			run.addError("cold insert (%d events): %v", len(rows), err)
			metrics.ArchivalBatchErrors.Inc()
			// Nothing was deleted, so the same events would be selected
			// again; the pass cannot make progress.
			break
		}
		run.EventsArchived += len(rows)

		if err := e.hot.DeleteByIDs(ctx, ids); err != nil {
			// The batch now exists in both tiers. Duplicates in the cold
			// store are acceptable; losing events is not.
			run.addError("hot delete (%d events, already archived): %v", len(ids), err)
			metrics.ArchivalBatchErrors.Inc()
			break
		}
		run.EventsDeleted += len(ids)
		run.BatchesProcessed++

		if e.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.cfg.BatchDelay):
			}
		}
	}

	e.log.Printf("archival: pass finished, archived %d deleted %d in %d batches, %d errors",
		run.EventsArchived, run.EventsDeleted, run.BatchesProcessed, len(run.Errors))
	return run
}

// Candidates describes what the next pass would touch, without moving anything.
type Candidates struct {
	OlderThan       time.Time               `json:"older_than"`
	NotOlderThan    time.Time               `json:"not_older_than"`
	TotalCandidates int64                   `json:"total_candidates"`
	ByDay           []repository.DailyCount `json:"by_day"`
	EstimatedRuns   int                     `json:"estimated_batches"`
}

// Candidates reports the events currently inside the archival window, grouped
// by day. The scan is read only.
func (e *Engine) Candidates(ctx context.Context) (*Candidates, error) {
	olderThan, notOlderThan := e.cfg.window(e.now().UTC())
	byDay, err := e.hot.CountArchivable(ctx, olderThan, notOlderThan)
	if err != nil {
		return nil, fmt.Errorf("count archivable: %w", err)
	}
	out := &Candidates{
		OlderThan:    olderThan,
		NotOlderThan: notOlderThan,
		ByDay:        byDay,
	}
	for _, d := range byDay {
		out.TotalCandidates += d.Count
	}
	out.EstimatedRuns = int((out.TotalCandidates + int64(e.cfg.BatchSize) - 1) / int64(e.cfg.BatchSize))
	return out, nil
}

// IntegrityReport compares the two tiers at a point in time.
type IntegrityReport struct {
	CheckedAt      time.Time                 `json:"checked_at"`
	ColdReachable  bool                      `json:"cold_reachable"`
	HotEvents      int64                     `json:"hot_events"`
	HotOldest      *time.Time                `json:"hot_oldest,omitempty"`
	HotNewest      *time.Time                `json:"hot_newest,omitempty"`
	Cold           *coldstore.AggregateStats `json:"cold,omitempty"`
	PendingArchive int64                     `json:"pending_archive"`
}

// VerifyIntegrity checks cold store reachability and gathers aggregate counts
// from both tiers. It is a health probe, not a row level audit.
func (e *Engine) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{CheckedAt: e.now().UTC()}

	hotStats, err := e.hot.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("hot stats: %w", err)
	}
	report.HotEvents = hotStats.TotalEvents

	if r, err := e.hot.Range(ctx); err == nil && r != nil {
		report.HotOldest = r.Oldest
		report.HotNewest = r.Newest
	}

	cand, err := e.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	report.PendingArchive = cand.TotalCandidates

	report.ColdReachable = e.cold.Ping(ctx)
	if report.ColdReachable {
		cold, err := e.cold.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("cold stats: %w", err)
		}
		report.Cold = cold
	}
	return report, nil
}
