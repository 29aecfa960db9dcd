package event

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/paymentintent"
	ierr "github.com/storiqa/billing/internal/errors"
)

// Payload is the event body. It serializes as an externally tagged JSON
// object, e.g. {"InvoicePaid":{"invoice_id":"..."}}, so the journal stays
// readable and the variant name doubles as the dispatch key.
type Payload struct {
	NoOp                                 *NoOp                                 `json:"NoOp,omitempty"`
	InvoicePaid                          *InvoicePaid                          `json:"InvoicePaid,omitempty"`
	PaymentIntentPaymentFailed           *PaymentIntentPaymentFailed           `json:"PaymentIntentPaymentFailed,omitempty"`
	PaymentIntentAmountCapturableUpdated *PaymentIntentAmountCapturableUpdated `json:"PaymentIntentAmountCapturableUpdated,omitempty"`
	PaymentIntentSucceeded               *PaymentIntentSucceeded               `json:"PaymentIntentSucceeded,omitempty"`
	PaymentIntentCapture                 *PaymentIntentCapture                 `json:"PaymentIntentCapture,omitempty"`
	PaymentExpired                       *PaymentExpired                       `json:"PaymentExpired,omitempty"`
	PayoutInitiated                      *PayoutInitiated                      `json:"PayoutInitiated,omitempty"`
}

type NoOp struct{}

type InvoicePaid struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

type PaymentIntentPaymentFailed struct {
	PaymentIntent paymentintent.PaymentIntent `json:"payment_intent"`
}

type PaymentIntentAmountCapturableUpdated struct {
	PaymentIntent paymentintent.PaymentIntent `json:"payment_intent"`
}

type PaymentIntentSucceeded struct {
	PaymentIntent paymentintent.PaymentIntent `json:"payment_intent"`
}

type PaymentIntentCapture struct {
	OrderID uuid.UUID `json:"order_id"`
}

type PaymentExpired struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

type PayoutInitiated struct {
	PayoutID uuid.UUID `json:"payout_id"`
}

// Kind returns the variant name, used for logging and dispatch.
func (p Payload) Kind() string {
	switch {
	case p.InvoicePaid != nil:
		return "InvoicePaid"
	case p.PaymentIntentPaymentFailed != nil:
		return "PaymentIntentPaymentFailed"
	case p.PaymentIntentAmountCapturableUpdated != nil:
		return "PaymentIntentAmountCapturableUpdated"
	case p.PaymentIntentSucceeded != nil:
		return "PaymentIntentSucceeded"
	case p.PaymentIntentCapture != nil:
		return "PaymentIntentCapture"
	case p.PaymentExpired != nil:
		return "PaymentExpired"
	case p.PayoutInitiated != nil:
		return "PayoutInitiated"
	default:
		return "NoOp"
	}
}

func (p Payload) String() string {
	return p.Kind()
}

// Validate rejects payloads with zero or multiple variants set.
func (p Payload) Validate() error {
	set := 0
	for _, v := range []bool{
		p.NoOp != nil,
		p.InvoicePaid != nil,
		p.PaymentIntentPaymentFailed != nil,
		p.PaymentIntentAmountCapturableUpdated != nil,
		p.PaymentIntentSucceeded != nil,
		p.PaymentIntentCapture != nil,
		p.PaymentExpired != nil,
		p.PayoutInitiated != nil,
	} {
		if v {
			set++
		}
	}
	if set != 1 {
		return ierr.NewError("event payload must carry exactly one variant").
			WithHintf("Payload has %d variants set", set).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// MarshalPayload serializes the payload for storage. NoOp serializes as
// the bare string "NoOp" to match pre-existing journal rows.
func MarshalPayload(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.NoOp != nil {
		return json.Marshal("NoOp")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to serialize event payload").
			Mark(ierr.ErrSystem)
	}
	return data, nil
}

// UnmarshalPayload parses a stored payload.
func UnmarshalPayload(data []byte) (Payload, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag == "NoOp" {
			return Payload{NoOp: &NoOp{}}, nil
		}
		return Payload{}, ierr.NewError("unknown event payload").
			WithHintf("Unsupported unit variant %q", tag).
			Mark(ierr.ErrSystem)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, ierr.WithError(err).
			WithHint("Failed to parse event payload").
			Mark(ierr.ErrSystem)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}
