package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiqa/billing/internal/domain/event"
	"github.com/storiqa/billing/internal/sentry"
	"github.com/storiqa/billing/internal/testutil"
	"github.com/storiqa/billing/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *testutil.Stores, *testutil.Clients) {
	t.Helper()
	params, stores, clients := testutil.NewServiceParams()
	sentrySvc := sentry.NewSentryService(params.Config, params.Logger)
	engine := NewEngine(stores.Event, NewHandler(params), params.Config, sentrySvc, params.Logger)
	return engine, stores, clients
}

func TestTickCompletesEntry(t *testing.T) {
	engine, stores, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, stores.Event.AddEvent(ctx, event.NewEvent(event.Payload{NoOp: &event.NoOp{}})))

	engine.Tick(ctx)

	entries := stores.Event.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.EventStatusCompleted, entries[0].Status)
	assert.Equal(t, 1, entries[0].Attempts)
}

func TestTickRequeuesFailedEntryUntilMaxAttempts(t *testing.T) {
	engine, stores, _ := newTestEngine(t)
	ctx := context.Background()

	// an intent nothing links to makes the handler fail deterministically
	intent := testIntent("pi_orphan")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.Event.AddEvent(ctx, event.NewEvent(event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	})))

	engine.Tick(ctx)
	entries := stores.Event.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.EventStatusPending, entries[0].Status)
	assert.Equal(t, 1, entries[0].Attempts)

	engine.Tick(ctx)
	engine.Tick(ctx)

	entries = stores.Event.Entries()
	assert.Equal(t, types.EventStatusFailed, entries[0].Status)
	assert.Equal(t, 3, entries[0].Attempts)

	// a poisoned entry is never claimed again
	engine.Tick(ctx)
	entries = stores.Event.Entries()
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestTickResetsStuckEntries(t *testing.T) {
	engine, stores, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, stores.Event.AddEvent(ctx, event.NewEvent(event.Payload{NoOp: &event.NoOp{}})))

	// a worker claimed the entry and died; its lease is already over
	claimed, err := stores.Event.GetEventsForProcessing(ctx, 1, -time.Second)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	engine.Tick(ctx)

	entries := stores.Event.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.EventStatusCompleted, entries[0].Status)
	assert.Equal(t, 2, entries[0].Attempts)
}

func TestTickSkipsScheduledEntriesUntilDue(t *testing.T) {
	engine, stores, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, stores.Event.AddScheduledEvent(ctx,
		event.NewEvent(event.Payload{NoOp: &event.NoOp{}}),
		time.Now().Add(time.Hour),
	))

	engine.Tick(ctx)

	entries := stores.Event.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.EventStatusPending, entries[0].Status)
	assert.Equal(t, 0, entries[0].Attempts)
}

func TestEngineStartStop(t *testing.T) {
	engine, stores, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, stores.Event.AddEvent(ctx, event.NewEvent(event.Payload{NoOp: &event.NoOp{}})))

	engine.Start()

	deadline := time.After(5 * time.Second)
	for {
		entries := stores.Event.Entries()
		if len(entries) == 1 && entries[0].Status == types.EventStatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("entry was not processed before the deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(stopCtx))
}
