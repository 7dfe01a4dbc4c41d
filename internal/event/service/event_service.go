// Package service implements event ingestion and retrieval over the hot store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"event-analytics-api/internal/event/domain"
	"event-analytics-api/internal/event/repository"
	"event-analytics-api/internal/metrics"
	"event-analytics-api/internal/stream"
)

// Item statuses reported per ingested event. A duplicate is a successful
// outcome: the event was already stored under the same id.
const (
	StatusCreated   = "created"
	StatusDuplicate = "duplicate"
)

// ErrValidation wraps event validation failures; the handler maps it to a 400.
var ErrValidation = errors.New("invalid event")

// EventRepo is the minimal event repository needed by the service.
type EventRepo interface {
	Insert(ctx context.Context, e *domain.Event) error
	ExistsByID(ctx context.Context, eventID string) (bool, error)
	GetByID(ctx context.Context, eventID string) (*domain.Event, error)
	List(ctx context.Context, f repository.Filter) ([]*domain.Event, error)
	Count(ctx context.Context) (int64, error)
}

// IngestResult is the per-event outcome of an ingest call.
type IngestResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// BatchResult summarizes a batch ingest.
type BatchResult struct {
	Items      []IngestResult `json:"items"`
	Created    int            `json:"created"`
	Duplicates int            `json:"duplicates"`
}

// EventService ingests events idempotently and publishes notifications for
// accepted ones.
type EventService struct {
	repo      EventRepo
	publisher stream.Publisher
	now       func() time.Time
}

// NewEventService returns an EventService. publisher may be nil to disable
// stream notifications.
func NewEventService(repo EventRepo, publisher stream.Publisher) *EventService {
	return &EventService{repo: repo, publisher: publisher, now: time.Now}
}

// Ingest stores one event. A missing event_id gets a generated one; a missing
// occurred_at defaults to the ingest time. Re-sending an id that is already
// stored reports StatusDuplicate without modifying the stored event.
func (s *EventService) Ingest(ctx context.Context, e *domain.Event) (*IngestResult, error) {
	now := s.now().UTC()
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	e.CreatedAt = now
	if err := e.Validate(); err != nil {
		metrics.IngestErrors.Inc()
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Cheap pre-check; the unique constraint remains the authority under
	// concurrent sends of the same id.
	exists, err := s.repo.ExistsByID(ctx, e.EventID)
	if err != nil {
		metrics.IngestErrors.Inc()
		return nil, fmt.Errorf("check event: %w", err)
	}
	if exists {
		metrics.EventsDuplicate.Inc()
		return &IngestResult{EventID: e.EventID, Status: StatusDuplicate}, nil
	}

	if err := s.repo.Insert(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			metrics.EventsDuplicate.Inc()
			return &IngestResult{EventID: e.EventID, Status: StatusDuplicate}, nil
		}
		metrics.IngestErrors.Inc()
		return nil, fmt.Errorf("insert event: %w", err)
	}

	metrics.EventsCreated.Inc()
	stream.PublishAsync(s.publisher, &stream.Record{
		EventID:    e.EventID,
		UserID:     e.UserID,
		EventType:  e.EventType,
		OccurredAt: e.OccurredAt,
		IngestedAt: now,
	})
	return &IngestResult{EventID: e.EventID, Status: StatusCreated}, nil
}

// IngestBatch stores a batch of events with per-item outcomes. Validation
// failures reject the whole batch before anything is written; duplicates are
// reported per item and do not stop the batch.
func (s *EventService) IngestBatch(ctx context.Context, events []*domain.Event) (*BatchResult, error) {
	now := s.now().UTC()
	for i, e := range events {
		if e.EventID == "" {
			e.EventID = uuid.NewString()
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = now
		}
		if err := e.Validate(); err != nil {
			metrics.IngestErrors.Inc()
			return nil, fmt.Errorf("%w: item %d: %v", ErrValidation, i, err)
		}
	}

	out := &BatchResult{Items: make([]IngestResult, 0, len(events))}
	for _, e := range events {
		res, err := s.Ingest(ctx, e)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, *res)
		switch res.Status {
		case StatusCreated:
			out.Created++
		case StatusDuplicate:
			out.Duplicates++
		}
	}
	return out, nil
}

// Get returns the event with the given id, or nil when it is not in the hot
// store (it may have been archived).
func (s *EventService) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	return s.repo.GetByID(ctx, eventID)
}

// List returns hot events matching the filter, newest first.
func (s *EventService) List(ctx context.Context, f repository.Filter) ([]*domain.Event, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	return s.repo.List(ctx, f)
}

// Count returns the number of events currently in the hot store.
func (s *EventService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
