package paymentintent

import (
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/types"
)

// PaymentIntent mirrors the card gateway's intent object. The identifier
// is the gateway's own (pi_...), not one of ours.
type PaymentIntent struct {
	ID                      string                    `db:"id" json:"id"`
	Amount                  types.Amount              `db:"amount" json:"amount"`
	AmountReceived          types.Amount              `db:"amount_received" json:"amount_received"`
	ClientSecret            *string                   `db:"client_secret" json:"client_secret,omitempty"`
	Currency                types.Currency            `db:"currency" json:"currency"`
	LastPaymentErrorMessage *string                   `db:"last_payment_error_message" json:"last_payment_error_message,omitempty"`
	ReceiptEmail            *string                   `db:"receipt_email" json:"receipt_email,omitempty"`
	ChargeID                *string                   `db:"charge_id" json:"charge_id,omitempty"`
	Status                  types.PaymentIntentStatus `db:"status" json:"status"`
	CreatedAt               time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time                 `db:"updated_at" json:"updated_at"`
}

// InvoiceLink ties a card intent to the invoice it pays.
type InvoiceLink struct {
	ID              int64     `db:"id"`
	InvoiceID       uuid.UUID `db:"invoice_id"`
	PaymentIntentID string    `db:"payment_intent_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// FeeLink ties a card intent to the marketplace fee it settles.
type FeeLink struct {
	ID              int64     `db:"id"`
	FeeID           int64     `db:"fee_id"`
	PaymentIntentID string    `db:"payment_intent_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// UpdateInput is a partial update applied when a gateway webhook reports
// intent progress.
type UpdateInput struct {
	Status                  *types.PaymentIntentStatus
	AmountReceived          *types.Amount
	ChargeID                *string
	LastPaymentErrorMessage *string
}
