package v1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	stripesdk "github.com/stripe/stripe-go/v82"

	"github.com/storiqa/billing/internal/clients/payments"
	"github.com/storiqa/billing/internal/clients/stripe"
	"github.com/storiqa/billing/internal/domain/event"
	"github.com/storiqa/billing/internal/domain/paymentintent"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/service"
)

// WebhookHandler terminates gateway callbacks. Both endpoints verify the
// sender cryptographically before anything is enqueued.
type WebhookHandler struct {
	invoices  service.InvoiceService
	stripe    stripe.Client
	eventRepo event.Repository
	log       *logger.Logger
}

func NewWebhookHandler(
	invoices service.InvoiceService,
	stripeClient stripe.Client,
	eventRepo event.Repository,
	log *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		invoices:  invoices,
		stripe:    stripeClient,
		eventRepo: eventRepo,
		log:       log,
	}
}

// @Summary Crypto gateway callback
// @Description Inbound transaction notification from the crypto gateway
// @Tags Webhooks
// @Accept json
// @Success 200
// @Failure 403 {object} middleware.ErrorResponse
// @Router /callback/crypto [post]
func (h *WebhookHandler) CryptoCallback(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Failed to read request body").
			Mark(ierr.ErrValidation))
		return
	}

	var callback payments.InboundTxCallback
	if err := json.Unmarshal(rawBody, &callback); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid callback payload").
			Mark(ierr.ErrValidation))
		return
	}

	signHeader := c.GetHeader("Sign")
	if err := h.invoices.HandleInboundTx(c.Request.Context(), signHeader, callback, rawBody); err != nil {
		h.log.Errorw("Failed to handle inbound transaction",
			"transaction_id", callback.TransactionID,
			"error", err,
		)
		c.Error(err)
		return
	}

	c.Status(http.StatusOK)
}

// @Summary Card gateway webhook
// @Description Payment intent lifecycle notifications from the card gateway
// @Tags Webhooks
// @Accept json
// @Success 200
// @Failure 403 {object} middleware.ErrorResponse
// @Router /callback/card [post]
func (h *WebhookHandler) CardCallback(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Failed to read request body").
			Mark(ierr.ErrValidation))
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	webhookEvent, err := h.stripe.ConstructWebhookEvent(rawBody, sigHeader)
	if err != nil {
		c.Error(err)
		return
	}

	payload, err := h.eventPayload(webhookEvent)
	if err != nil {
		c.Error(err)
		return
	}
	if payload == nil {
		// Not a shape we act on; acknowledge so the gateway stops retrying.
		h.log.Debugw("ignoring webhook event", "type", webhookEvent.Type)
		c.Status(http.StatusOK)
		return
	}

	if err := h.eventRepo.AddEvent(c.Request.Context(), event.NewEvent(*payload)); err != nil {
		h.log.Errorw("Failed to enqueue webhook event", "type", webhookEvent.Type, "error", err)
		c.Error(err)
		return
	}

	c.Status(http.StatusOK)
}

// eventPayload maps a verified gateway event onto a journal payload.
// Processing is deferred to the event engine; the webhook only records.
func (h *WebhookHandler) eventPayload(webhookEvent *stripesdk.Event) (*event.Payload, error) {
	switch webhookEvent.Type {
	case "payment_intent.amount_capturable_updated":
		intent, err := parseIntent(webhookEvent)
		if err != nil {
			return nil, err
		}
		return &event.Payload{
			PaymentIntentAmountCapturableUpdated: &event.PaymentIntentAmountCapturableUpdated{PaymentIntent: *intent},
		}, nil

	case "payment_intent.succeeded":
		intent, err := parseIntent(webhookEvent)
		if err != nil {
			return nil, err
		}
		return &event.Payload{
			PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
		}, nil

	case "payment_intent.payment_failed":
		intent, err := parseIntent(webhookEvent)
		if err != nil {
			return nil, err
		}
		return &event.Payload{
			PaymentIntentPaymentFailed: &event.PaymentIntentPaymentFailed{PaymentIntent: *intent},
		}, nil

	default:
		return nil, nil
	}
}

func parseIntent(webhookEvent *stripesdk.Event) (*paymentintent.PaymentIntent, error) {
	var intent stripesdk.PaymentIntent
	if err := json.Unmarshal(webhookEvent.Data.Raw, &intent); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Webhook payload is not a payment intent").
			Mark(ierr.ErrValidation)
	}
	return stripe.FromStripeIntent(&intent), nil
}
