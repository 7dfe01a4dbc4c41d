package stream

import (
	"context"
	"log"
	"time"
)

// publishTimeout is the max time allowed for a single async publish.
const publishTimeout = 5 * time.Second

// PublishAsync runs Publish in a goroutine so the caller is not blocked.
// Use from request handlers for fire-and-forget notifications; errors are
// logged. publisher and rec may be nil; PublishAsync returns immediately
// without starting a goroutine.
//
// The goroutine uses context.Background() with publishTimeout so request
// cancellation does not abort an in-flight publish.
func PublishAsync(publisher Publisher, rec *Record) {
	if publisher == nil || rec == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := publisher.Publish(ctx, rec); err != nil {
			log.Printf("stream: async publish failed: %v", err)
		}
	}()
}
