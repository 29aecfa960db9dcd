package order

import (
	"time"

	"github.com/google/uuid"

	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// Order is one store's line within an invoice, priced in the seller's
// currency.
type Order struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	InvoiceID      uuid.UUID          `db:"invoice_id" json:"invoice_id"`
	StoreID        int64              `db:"store_id" json:"store_id"`
	SellerCurrency types.Currency     `db:"seller_currency" json:"seller_currency"`
	TotalAmount    types.Amount       `db:"total_amount" json:"total_amount"`
	CashbackAmount types.Amount       `db:"cashback_amount" json:"cashback_amount"`
	State          types.PaymentState `db:"state" json:"state"`
	StripeFee      *types.Amount      `db:"stripe_fee" json:"stripe_fee,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

func (o *Order) TableName() string {
	return "orders"
}

func (o *Order) Validate() error {
	if o.ID == uuid.Nil || o.InvoiceID == uuid.Nil {
		return ierr.NewError("order and invoice ids are required").
			Mark(ierr.ErrValidation)
	}
	if err := o.SellerCurrency.Validate(); err != nil {
		return err
	}
	return nil
}
