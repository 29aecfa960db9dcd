package invoice

import (
	"time"

	"github.com/google/uuid"

	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// Invoice is one customer checkout: the bundle of orders the buyer pays
// for with a single payment in buyer currency.
type Invoice struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	BuyerUserID    int64          `db:"buyer_user_id" json:"buyer_user_id"`
	BuyerCurrency  types.Currency `db:"buyer_currency" json:"buyer_currency"`
	AmountCaptured types.Amount   `db:"amount_captured" json:"amount_captured"`

	// AccountID points at the pooled wallet receiving funds; set only on
	// the crypto flow.
	AccountID *uuid.UUID `db:"account_id" json:"account_id,omitempty"`

	// The three final fields become non-null together when the invoice is
	// recognized as paid. PaidAt is monotone: once set, never changed.
	FinalAmountPaid     *types.Amount `db:"final_amount_paid" json:"final_amount_paid,omitempty"`
	FinalCashbackAmount *types.Amount `db:"final_cashback_amount" json:"final_cashback_amount,omitempty"`
	PaidAt              *time.Time    `db:"paid_at" json:"paid_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (i *Invoice) TableName() string {
	return "invoices"
}

// IsPaid reports whether the invoice reached its terminal paid state.
func (i *Invoice) IsPaid() bool {
	return i.PaidAt != nil
}

func (i *Invoice) Validate() error {
	if i.ID == uuid.Nil {
		return ierr.NewError("invoice id is required").
			WithHint("Invoice ID must be a non-nil UUID").
			Mark(ierr.ErrValidation)
	}
	if err := i.BuyerCurrency.Validate(); err != nil {
		return err
	}
	if i.BuyerCurrency.IsCrypto() && i.AccountID == nil {
		return ierr.NewError("crypto invoice requires a pooled account").
			WithReportableDetails(map[string]interface{}{
				"invoice_id": i.ID,
				"currency":   i.BuyerCurrency,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SetPaidInput freezes the final prices on an invoice.
type SetPaidInput struct {
	FinalAmountPaid     types.Amount
	FinalCashbackAmount types.Amount
	PaidAt              time.Time
}
