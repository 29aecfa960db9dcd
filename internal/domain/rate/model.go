package rate

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// OrderExchangeRate converts between seller and buyer currency for one
// order: buyer_super_units = seller_super_units / rate. Rates are
// versioned; the single Active row is the one currently applied.
type OrderExchangeRate struct {
	ID      int64     `db:"id" json:"id"`
	OrderID uuid.UUID `db:"order_id" json:"order_id"`

	// ExchangeID is the crypto gateway's reservation token. Absent for
	// the dummy 1:1 rate used when buyer and seller currency coincide.
	ExchangeID *uuid.UUID `db:"exchange_id" json:"exchange_id,omitempty"`

	Rate      decimal.Decimal  `db:"rate" json:"rate"`
	Status    types.RateStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

func (r *OrderExchangeRate) TableName() string {
	return "order_exchange_rates"
}

// IsDummy reports whether this is the implicit 1:1 rate with no gateway
// reservation behind it.
func (r *OrderExchangeRate) IsDummy() bool {
	return r.ExchangeID == nil
}

// NewRate is the input for reserving a rate on an order.
type NewRate struct {
	OrderID    uuid.UUID
	ExchangeID *uuid.UUID
	Rate       decimal.Decimal
}

func (n NewRate) Validate() error {
	if n.OrderID == uuid.Nil {
		return ierr.NewError("order id is required").
			Mark(ierr.ErrValidation)
	}
	if !n.Rate.IsPositive() {
		return ierr.NewError("exchange rate must be greater than 0").
			WithReportableDetails(map[string]interface{}{
				"order_id": n.OrderID,
				"rate":     n.Rate,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
