package stripe

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/storiqa/billing/internal/config"
	"github.com/storiqa/billing/internal/domain/paymentintent"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/types"
)

// NewPaymentIntent is the input for opening a card payment intent.
type NewPaymentIntent struct {
	Amount   uint64
	Currency types.Currency
}

// NewCharge is the input for billing a fee off-session.
type NewCharge struct {
	Amount      uint64
	Currency    types.Currency
	CustomerID  *string
	Description string
}

// Client wraps the card gateway SDK. Webhook signature verification is
// done by the library.
type Client interface {
	CreatePaymentIntent(ctx context.Context, input NewPaymentIntent) (*paymentintent.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) error
	CapturePaymentIntent(ctx context.Context, id string) (*paymentintent.PaymentIntent, error)
	CreateCharge(ctx context.Context, input NewCharge, metadata types.Metadata) (*stripe.Charge, error)
	ConstructWebhookEvent(payload []byte, sigHeader string) (*stripe.Event, error)
}

type client struct {
	sc            *stripe.Client
	webhookSecret string
	logger        *logger.Logger
}

func NewClient(cfg config.StripeConfig, logger *logger.Logger) Client {
	return &client{
		sc:            stripe.NewClient(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

func (c *client) CreatePaymentIntent(ctx context.Context, input NewPaymentIntent) (*paymentintent.PaymentIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(int64(input.Amount)),
		Currency:           stripe.String(string(input.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
	}

	intent, err := c.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create payment intent").
			WithReportableDetails(map[string]interface{}{
				"amount":   input.Amount,
				"currency": input.Currency,
			}).
			Mark(ierr.ErrHTTPClient)
	}

	c.logger.Infow("created payment intent",
		"payment_intent_id", intent.ID,
		"amount", input.Amount,
		"currency", input.Currency,
	)
	return FromStripeIntent(intent), nil
}

func (c *client) CancelPaymentIntent(ctx context.Context, id string) error {
	_, err := c.sc.V1PaymentIntents.Cancel(ctx, id, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to cancel payment intent").
			WithReportableDetails(map[string]interface{}{
				"payment_intent_id": id,
			}).
			Mark(ierr.ErrHTTPClient)
	}
	c.logger.Infow("canceled payment intent", "payment_intent_id", id)
	return nil
}

func (c *client) CapturePaymentIntent(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	intent, err := c.sc.V1PaymentIntents.Capture(ctx, id, nil)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to capture payment intent").
			WithReportableDetails(map[string]interface{}{
				"payment_intent_id": id,
			}).
			Mark(ierr.ErrHTTPClient)
	}
	return FromStripeIntent(intent), nil
}

func (c *client) CreateCharge(ctx context.Context, input NewCharge, metadata types.Metadata) (*stripe.Charge, error) {
	params := &stripe.ChargeCreateParams{
		Amount:      stripe.Int64(int64(input.Amount)),
		Currency:    stripe.String(string(input.Currency)),
		Customer:    input.CustomerID,
		Description: stripe.String(input.Description),
		Metadata:    metadata,
	}

	charge, err := c.sc.V1Charges.Create(ctx, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create charge").
			Mark(ierr.ErrHTTPClient)
	}

	c.logger.Infow("created charge", "charge_id", charge.ID, "amount", input.Amount)
	return charge, nil
}

func (c *client) ConstructWebhookEvent(payload []byte, sigHeader string) (*stripe.Event, error) {
	options := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, options)
	if err != nil {
		c.logger.Errorw("webhook verification failed", "error", err)
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrForbidden)
	}
	return &event, nil
}

// FromStripeIntent maps the SDK object onto the stored intent row.
func FromStripeIntent(intent *stripe.PaymentIntent) *paymentintent.PaymentIntent {
	out := &paymentintent.PaymentIntent{
		ID:             intent.ID,
		Amount:         types.NewAmount(uint64(intent.Amount)),
		AmountReceived: types.NewAmount(uint64(intent.AmountReceived)),
		Currency:       types.Currency(intent.Currency),
		Status:         types.PaymentIntentStatus(intent.Status),
	}
	if intent.ClientSecret != "" {
		secret := intent.ClientSecret
		out.ClientSecret = &secret
	}
	if intent.ReceiptEmail != "" {
		email := intent.ReceiptEmail
		out.ReceiptEmail = &email
	}
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		msg := intent.LastPaymentError.Msg
		out.LastPaymentErrorMessage = &msg
	}
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		chargeID := intent.LatestCharge.ID
		out.ChargeID = &chargeID
	}
	return out
}
