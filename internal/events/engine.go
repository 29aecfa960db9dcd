package events

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/storiqa/billing/internal/config"
	"github.com/storiqa/billing/internal/domain/event"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/sentry"
)

// Engine drains the event journal. One entry is claimed per tick under a
// lease; entries whose lease expired are handed back to the queue first,
// so a crashed worker's work is retried rather than lost.
type Engine struct {
	repo    event.Repository
	handler *Handler
	cfg     config.EventHandleConfig
	sentry  *sentry.Service
	logger  *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(
	repo event.Repository,
	handler *Handler,
	cfg *config.Configuration,
	sentrySvc *sentry.Service,
	logger *logger.Logger,
) *Engine {
	return &Engine{
		repo:    repo,
		handler: handler,
		cfg:     cfg.EventHandle,
		sentry:  sentrySvc,
		logger:  logger,
	}
}

// RegisterHooks starts the engine with the application and stops it on
// shutdown, waiting for the in-flight entry to finish.
func RegisterHooks(lc fx.Lifecycle, e *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			e.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Stop(ctx)
		},
	})
}

func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(ctx)
	e.logger.Infow("event engine started",
		"tick_interval", e.cfg.TickInterval(),
		"lease", e.cfg.Lease(),
	)
}

func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one poll cycle. Errors are logged and reported, never
// propagated; the next tick starts from a clean slate.
func (e *Engine) Tick(ctx context.Context) {
	reset, err := e.repo.ResetStuckEvents(ctx)
	if err != nil {
		e.reportError(err, "failed to reset stuck events")
		return
	}
	if reset > 0 {
		e.logger.Warnw("reset stuck events", "count", reset)
	}

	entries, err := e.repo.GetEventsForProcessing(ctx, 1, e.cfg.Lease())
	if err != nil {
		e.reportError(err, "failed to claim events")
		return
	}

	for _, entry := range entries {
		e.process(ctx, entry)
	}
}

func (e *Engine) process(ctx context.Context, entry event.Entry) {
	kind := entry.Event.Payload.Kind()
	span, ctx := e.sentry.MonitorEventProcessing(ctx, kind, map[string]interface{}{
		"entry_id": entry.ID,
		"event_id": entry.Event.ID,
		"attempt":  entry.Attempts,
	})
	if span != nil {
		defer span.Finish()
	}

	e.logger.Debugw("processing event",
		"entry_id", entry.ID,
		"event_id", entry.Event.ID,
		"kind", kind,
		"attempt", entry.Attempts,
	)

	if err := e.handler.Handle(ctx, entry.Event); err != nil {
		e.logger.Errorw("event handling failed",
			"entry_id", entry.ID,
			"event_id", entry.Event.ID,
			"kind", kind,
			"attempt", entry.Attempts,
			"error", err,
		)
		e.sentry.CaptureException(err)
		if err := e.repo.FailEvent(ctx, entry.ID, e.cfg.MaxAttempts); err != nil {
			e.reportError(err, "failed to record event failure")
		}
		return
	}

	if err := e.repo.CompleteEvent(ctx, entry.ID); err != nil {
		e.reportError(err, "failed to complete event")
		return
	}
	e.logger.Debugw("event completed", "entry_id", entry.ID, "kind", kind)
}

func (e *Engine) reportError(err error, msg string) {
	e.logger.Errorw(msg, "error", err)
	e.sentry.CaptureException(err)
}
