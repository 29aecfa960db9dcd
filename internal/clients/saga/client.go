package saga

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/config"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/httpclient"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/types"
)

// OrderStateUpdate tells the saga one order changed payment state.
type OrderStateUpdate struct {
	OrderID uuid.UUID          `json:"order_id"`
	State   types.PaymentState `json:"state"`
}

// OrdersPaid tells the saga every order of an invoice is paid.
type OrdersPaid struct {
	InvoiceID uuid.UUID   `json:"invoice_id"`
	OrderIDs  []uuid.UUID `json:"order_ids"`
}

// Client notifies the ecommerce saga service of order lifecycle changes.
// Deliveries are retried with exponential backoff; the saga endpoint is
// idempotent on its side.
type Client interface {
	UpdateOrdersState(ctx context.Context, updates []OrderStateUpdate) error
	SetOrdersPaid(ctx context.Context, input OrdersPaid) error
}

type client struct {
	http   httpclient.Client
	url    string
	logger *logger.Logger
}

func NewClient(cfg config.SagaConfig, http httpclient.Client, logger *logger.Logger) Client {
	return &client{http: http, url: cfg.URL, logger: logger}
}

func (c *client) UpdateOrdersState(ctx context.Context, updates []OrderStateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return c.post(ctx, "/orders/update_state", map[string]interface{}{"orders": updates})
}

func (c *client) SetOrdersPaid(ctx context.Context, input OrdersPaid) error {
	return c.post(ctx, "/orders/set_paid", input)
}

func (c *client) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to serialize saga notification").
			Mark(ierr.ErrSystem)
	}

	operation := func() error {
		resp, err := c.http.Send(ctx, &httpclient.Request{
			Method: http.MethodPost,
			URL:    c.url + path,
			Body:   payload,
		})
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return ierr.NewError("saga notification rejected").
				WithHintf("Saga returned status %d", resp.StatusCode).
				WithReportableDetails(map[string]interface{}{
					"path":   path,
					"status": resp.StatusCode,
				}).
				Mark(ierr.ErrHTTPClient)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.RetryNotify(operation, policy, func(err error, next time.Duration) {
		c.logger.Warnw("saga notification failed, retrying",
			"path", path,
			"retry_in", next,
			"error", err,
		)
	}); err != nil {
		return err
	}
	return nil
}
