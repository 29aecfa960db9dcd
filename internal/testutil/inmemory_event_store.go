package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/storiqa/billing/internal/domain/event"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// InMemoryEventStore implements event.Repository
type InMemoryEventStore struct {
	mu      sync.Mutex
	entries []*event.Entry
	nextID  int64
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

func (m *InMemoryEventStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.nextID = 0
}

// Entries returns a snapshot of the journal for assertions.
func (m *InMemoryEventStore) Entries() []event.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]event.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

func (m *InMemoryEventStore) AddEvent(ctx context.Context, ev event.Event) error {
	return m.add(ev, nil)
}

func (m *InMemoryEventStore) AddScheduledEvent(ctx context.Context, ev event.Event, scheduledFor time.Time) error {
	return m.add(ev, &scheduledFor)
}

func (m *InMemoryEventStore) add(ev event.Event, scheduledFor *time.Time) error {
	if err := ev.Payload.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := time.Now().UTC()
	m.entries = append(m.entries, &event.Entry{
		ID:           m.nextID,
		Event:        ev,
		Status:       types.EventStatusPending,
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	return nil
}

func (m *InMemoryEventStore) GetEventsForProcessing(ctx context.Context, limit int, lease time.Duration) ([]event.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	claimed := make([]event.Entry, 0, limit)
	for _, e := range m.entries {
		if len(claimed) >= limit {
			break
		}
		if e.Status != types.EventStatusPending {
			continue
		}
		if e.ScheduledFor != nil && e.ScheduledFor.After(now) {
			continue
		}
		leaseUntil := now.Add(lease)
		e.Status = types.EventStatusInProgress
		e.Attempts++
		e.LeaseUntil = &leaseUntil
		e.UpdatedAt = now
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (m *InMemoryEventStore) ResetStuckEvents(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var reset int64
	for _, e := range m.entries {
		if e.Status == types.EventStatusInProgress && e.LeaseUntil != nil && !e.LeaseUntil.After(now) {
			e.Status = types.EventStatusPending
			e.LeaseUntil = nil
			e.UpdatedAt = now
			reset++
		}
	}
	return reset, nil
}

func (m *InMemoryEventStore) CompleteEvent(ctx context.Context, entryID int64) error {
	return m.setStatus(entryID, types.EventStatusCompleted)
}

func (m *InMemoryEventStore) FailEvent(ctx context.Context, entryID int64, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID != entryID {
			continue
		}
		if maxAttempts > 1 && e.Attempts < maxAttempts {
			e.Status = types.EventStatusPending
		} else {
			e.Status = types.EventStatusFailed
		}
		e.LeaseUntil = nil
		e.UpdatedAt = time.Now().UTC()
		return nil
	}
	return ierr.NewError("event entry not found").
		Mark(ierr.ErrNotFound)
}

func (m *InMemoryEventStore) setStatus(entryID int64, status types.EventEntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID == entryID {
			e.Status = status
			e.LeaseUntil = nil
			e.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ierr.NewError("event entry not found").
		Mark(ierr.ErrNotFound)
}
