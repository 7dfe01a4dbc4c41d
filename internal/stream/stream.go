// Package stream publishes ingested-event notifications to a Kafka topic for
// downstream consumers. Publishing is best-effort: callers log and ignore
// errors, the ingestion path never depends on the broker.
package stream

import (
	"context"
	"time"
)

// Record is one ingestion notification on the wire.
type Record struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Publisher emits ingestion records. Best-effort; callers log and ignore errors.
type Publisher interface {
	// Publish sends a single record. Implementations may block briefly;
	// call from a goroutine if needed.
	Publish(ctx context.Context, rec *Record) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}
