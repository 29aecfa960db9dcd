package fee

import (
	"time"

	"github.com/google/uuid"

	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// Fee is the marketplace commission recognized against a captured order.
type Fee struct {
	ID       int64           `db:"id" json:"id"`
	OrderID  uuid.UUID       `db:"order_id" json:"order_id"`
	Amount   types.Amount    `db:"amount" json:"amount"`
	Currency types.Currency  `db:"currency" json:"currency"`
	Status   types.FeeStatus `db:"status" json:"status"`
	ChargeID *string         `db:"charge_id" json:"charge_id,omitempty"`
	Metadata types.Metadata  `db:"metadata" json:"metadata,omitempty"`

	// CryptoCurrency/CryptoAmount record the order's original crypto
	// denomination when the fee itself is billed in fiat.
	CryptoCurrency *types.Currency `db:"crypto_currency" json:"crypto_currency,omitempty"`
	CryptoAmount   *types.Amount   `db:"crypto_amount" json:"crypto_amount,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (f *Fee) TableName() string {
	return "fees"
}

// NewFee is the input for recognizing a fee on an order.
type NewFee struct {
	OrderID        uuid.UUID
	Amount         types.Amount
	Currency       types.Currency
	Status         types.FeeStatus
	ChargeID       *string
	Metadata       types.Metadata
	CryptoCurrency *types.Currency
	CryptoAmount   *types.Amount
}

func (n NewFee) Validate() error {
	if n.OrderID == uuid.Nil {
		return ierr.NewError("order id is required").
			Mark(ierr.ErrValidation)
	}
	if err := n.Currency.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateFee is a partial update; nil fields are left untouched.
type UpdateFee struct {
	Status   *types.FeeStatus
	ChargeID *string
	Metadata types.Metadata
}
