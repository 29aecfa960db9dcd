package event

import (
	"context"
	"time"
)

// Repository is the durable event journal. Entries are processed at most
// once at a time; a lease bounds how long an entry may sit in progress
// before it is handed back to the queue.
type Repository interface {
	// AddEvent enqueues an event for immediate processing.
	AddEvent(ctx context.Context, ev Event) error
	// AddScheduledEvent enqueues an event that becomes eligible at scheduledFor.
	AddScheduledEvent(ctx context.Context, ev Event, scheduledFor time.Time) error
	// GetEventsForProcessing atomically claims up to limit eligible entries,
	// marking them in progress with a lease.
	GetEventsForProcessing(ctx context.Context, limit int, lease time.Duration) ([]Entry, error)
	// ResetStuckEvents hands expired in-progress entries back to the queue
	// and returns how many were reset.
	ResetStuckEvents(ctx context.Context) (int64, error)
	// CompleteEvent marks an entry as successfully processed.
	CompleteEvent(ctx context.Context, entryID int64) error
	// FailEvent records a processing failure; entries under the attempt
	// budget go back to pending, the rest are parked as failed.
	FailEvent(ctx context.Context, entryID int64, maxAttempts int) error
}
