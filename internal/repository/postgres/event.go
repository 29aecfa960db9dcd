package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/event"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
	"github.com/storiqa/billing/internal/types"
)

type eventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewEventRepository(db *postgres.DB, logger *logger.Logger) event.Repository {
	return &eventRepository{db: db, logger: logger}
}

// eventRow is the raw journal row; the payload column stays opaque JSON.
type eventRow struct {
	ID           int64                  `db:"id"`
	EventID      uuid.UUID              `db:"event_id"`
	Payload      []byte                 `db:"payload"`
	Status       types.EventEntryStatus `db:"status"`
	Attempts     int                    `db:"attempt_count"`
	ScheduledFor *time.Time             `db:"scheduled_on"`
	LeaseUntil   *time.Time             `db:"lease_until"`
	CreatedAt    time.Time              `db:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at"`
}

func (row *eventRow) toEntry() (event.Entry, error) {
	payload, err := event.UnmarshalPayload(row.Payload)
	if err != nil {
		return event.Entry{}, err
	}
	return event.Entry{
		ID: row.ID,
		Event: event.Event{
			ID:      row.EventID,
			Payload: payload,
		},
		Status:       row.Status,
		Attempts:     row.Attempts,
		ScheduledFor: row.ScheduledFor,
		LeaseUntil:   row.LeaseUntil,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func (r *eventRepository) AddEvent(ctx context.Context, ev event.Event) error {
	return r.add(ctx, ev, nil)
}

func (r *eventRepository) AddScheduledEvent(ctx context.Context, ev event.Event, scheduledFor time.Time) error {
	return r.add(ctx, ev, &scheduledFor)
}

func (r *eventRepository) add(ctx context.Context, ev event.Event, scheduledFor *time.Time) error {
	payload, err := event.MarshalPayload(ev.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO event_store (event_id, payload, status, attempt_count, scheduled_on, created_at, updated_at)
		VALUES (:event_id, :payload, :status, 0, :scheduled_on, :created_at, :updated_at)`

	now := time.Now().UTC()
	_, err = r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"event_id":     ev.ID,
		"payload":      payload,
		"status":       types.EventStatusPending,
		"scheduled_on": scheduledFor,
		"created_at":   now,
		"updated_at":   now,
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to enqueue event").
			Mark(ierr.ErrDatabase)
	}

	r.logger.Debugw("event enqueued",
		"event_id", ev.ID,
		"kind", ev.Payload.Kind(),
		"scheduled_on", scheduledFor,
	)
	return nil
}

// GetEventsForProcessing claims up to limit eligible entries. SKIP LOCKED
// keeps concurrent processes from fighting over the same rows; the lease
// bounds how long a claim survives a crash.
func (r *eventRepository) GetEventsForProcessing(ctx context.Context, limit int, lease time.Duration) ([]event.Entry, error) {
	query := `
		UPDATE event_store SET
			status = :in_progress,
			attempt_count = attempt_count + 1,
			lease_until = :lease_until,
			updated_at = :updated_at
		WHERE id IN (
			SELECT id FROM event_store
			WHERE status = :pending
				AND (scheduled_on IS NULL OR scheduled_on <= :now)
			ORDER BY id ASC
			LIMIT :limit
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`

	now := time.Now().UTC()
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"in_progress": types.EventStatusInProgress,
		"pending":     types.EventStatusPending,
		"lease_until": now.Add(lease),
		"updated_at":  now,
		"now":         now,
		"limit":       limit,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to dequeue events").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var entries []event.Entry
	for rows.Next() {
		var row eventRow
		if err := rows.StructScan(&row); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan event entry").
				Mark(ierr.ErrDatabase)
		}
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *eventRepository) ResetStuckEvents(ctx context.Context) (int64, error) {
	query := `
		UPDATE event_store SET
			status = :pending,
			lease_until = NULL,
			updated_at = :updated_at
		WHERE status = :in_progress AND lease_until <= :now`

	now := time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"pending":     types.EventStatusPending,
		"in_progress": types.EventStatusInProgress,
		"updated_at":  now,
		"now":         now,
	})
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to reset stuck events").
			Mark(ierr.ErrDatabase)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	if n > 0 {
		r.logger.Warnw("reset stuck events", "count", n)
	}
	return n, nil
}

func (r *eventRepository) CompleteEvent(ctx context.Context, entryID int64) error {
	return r.transition(ctx, entryID, types.EventStatusCompleted)
}

// FailEvent parks the entry as Failed once its attempt budget is spent;
// before that it goes back to Pending for another try.
func (r *eventRepository) FailEvent(ctx context.Context, entryID int64, maxAttempts int) error {
	if maxAttempts > 1 {
		query := `
			UPDATE event_store SET
				status = :pending,
				lease_until = NULL,
				updated_at = :updated_at
			WHERE id = :id AND status = :in_progress AND attempt_count < :max_attempts`

		res, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
			"pending":      types.EventStatusPending,
			"in_progress":  types.EventStatusInProgress,
			"updated_at":   time.Now().UTC(),
			"id":           entryID,
			"max_attempts": maxAttempts,
		})
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to requeue event").
				Mark(ierr.ErrDatabase)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
	}
	return r.transition(ctx, entryID, types.EventStatusFailed)
}

func (r *eventRepository) transition(ctx context.Context, entryID int64, status types.EventEntryStatus) error {
	query := `
		UPDATE event_store SET
			status = :status,
			lease_until = NULL,
			updated_at = :updated_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
		"id":         entryID,
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update event status").
			Mark(ierr.ErrDatabase)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("event entry not found").
			Mark(ierr.ErrNotFound)
	}
	return nil
}
