package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/types"
)

// Event is a unit of asynchronous work. Payloads carry entity identifiers
// only; handlers reload current state from the store when they run.
type Event struct {
	ID      uuid.UUID
	Payload Payload
}

// NewEvent mints an event with a fresh identifier.
func NewEvent(payload Payload) Event {
	return Event{
		ID:      types.GenerateUUID(),
		Payload: payload,
	}
}

// Entry is an event persisted in the journal together with its
// processing bookkeeping.
type Entry struct {
	ID           int64                  `db:"id"`
	Event        Event                  `db:"-"`
	Status       types.EventEntryStatus `db:"status"`
	Attempts     int                    `db:"attempt_count"`
	ScheduledFor *time.Time             `db:"scheduled_on"`
	LeaseUntil   *time.Time             `db:"lease_until"`
	CreatedAt    time.Time              `db:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at"`
}
