package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storiqa/billing/internal/domain/order"
	"github.com/storiqa/billing/internal/domain/rate"
	"github.com/storiqa/billing/internal/types"
)

// OrderWithRates pairs an order with the rates to price it by. Callers
// pass either just the active rate or the full rate history.
type OrderWithRates struct {
	Order *order.Order
	Rates []*rate.OrderExchangeRate
}

// OrderDump is the priced view of one order inside an invoice dump.
type OrderDump struct {
	ID             uuid.UUID        `json:"id"`
	SellerCurrency types.Currency   `json:"seller_currency"`
	TotalAmount    types.Amount     `json:"total_amount"`
	CashbackAmount types.Amount     `json:"cashback_amount"`
	State          types.PaymentState `json:"state"`

	// Price is the order's cost in buyer super-units under the applied
	// rate; nil when no rate could be applied.
	Price      *decimal.Decimal `json:"price,omitempty"`
	Rate       *decimal.Decimal `json:"rate,omitempty"`
	ExchangeID *uuid.UUID       `json:"exchange_id,omitempty"`
}

// Dump is the complete priced view of an invoice: the current total in
// buyer super-units plus everything the caller needs to present or pay it.
type Dump struct {
	ID             uuid.UUID      `json:"id"`
	BuyerUserID    int64          `json:"buyer_user_id"`
	BuyerCurrency  types.Currency `json:"buyer_currency"`
	AmountCaptured types.Amount   `json:"amount_captured"`

	TotalPrice    decimal.Decimal `json:"total_price"`
	TotalCashback decimal.Decimal `json:"total_cashback"`

	// HasMissingRates is true when some order could not be priced: it has
	// no rate and its seller currency differs from the buyer's. A dump
	// with missing rates never triggers the paid transition.
	HasMissingRates bool `json:"has_missing_rates"`

	Orders        []OrderDump `json:"orders"`
	WalletAddress *string     `json:"wallet_address,omitempty"`

	FinalAmountPaid     *types.Amount `json:"final_amount_paid,omitempty"`
	FinalCashbackAmount *types.Amount `json:"final_cashback_amount,omitempty"`
	PaidAt              *time.Time    `json:"paid_at,omitempty"`
}

// IsPaid reports whether the dumped invoice is in its terminal paid state.
func (d *Dump) IsPaid() bool {
	return d.PaidAt != nil
}

// CalculateInvoicePrice computes the invoice total from its orders and
// their rates. Pure: no storage access, no writes.
//
// Per order the applied rate is the Active one, falling back to the
// newest known rate when pricing a paid invoice from its full history.
// An order with no rate prices 1:1 when seller and buyer currency
// coincide; otherwise it is reported through HasMissingRates.
// buyer_super_units = seller_super_units / rate. Cashback sums in STQ
// super-units.
func CalculateInvoicePrice(inv *Invoice, orders []OrderWithRates, walletAddress *string) *Dump {
	dump := &Dump{
		ID:                  inv.ID,
		BuyerUserID:         inv.BuyerUserID,
		BuyerCurrency:       inv.BuyerCurrency,
		AmountCaptured:      inv.AmountCaptured,
		TotalPrice:          decimal.Zero,
		TotalCashback:       decimal.Zero,
		Orders:              make([]OrderDump, 0, len(orders)),
		WalletAddress:       walletAddress,
		FinalAmountPaid:     inv.FinalAmountPaid,
		FinalCashbackAmount: inv.FinalCashbackAmount,
		PaidAt:              inv.PaidAt,
	}

	for _, ow := range orders {
		o := ow.Order
		od := OrderDump{
			ID:             o.ID,
			SellerCurrency: o.SellerCurrency,
			TotalAmount:    o.TotalAmount,
			CashbackAmount: o.CashbackAmount,
			State:          o.State,
		}

		applied := pickRate(ow.Rates)
		switch {
		case applied != nil:
			r := applied.Rate
			price := o.TotalAmount.ToSuperUnit(o.SellerCurrency).Div(r)
			od.Price = &price
			od.Rate = &r
			od.ExchangeID = applied.ExchangeID
			dump.TotalPrice = dump.TotalPrice.Add(price)
		case o.SellerCurrency == inv.BuyerCurrency:
			// No reservation needed when the currencies coincide.
			one := decimal.NewFromInt(1)
			price := o.TotalAmount.ToSuperUnit(o.SellerCurrency)
			od.Price = &price
			od.Rate = &one
			dump.TotalPrice = dump.TotalPrice.Add(price)
		default:
			dump.HasMissingRates = true
		}

		dump.TotalCashback = dump.TotalCashback.Add(o.CashbackAmount.ToSuperUnit(types.CurrencySTQ))
		dump.Orders = append(dump.Orders, od)
	}

	return dump
}

// pickRate returns the Active rate, or the newest rate when none is
// Active (the history form used for paid invoices).
func pickRate(rates []*rate.OrderExchangeRate) *rate.OrderExchangeRate {
	var newest *rate.OrderExchangeRate
	for _, r := range rates {
		if r.Status == types.RateStatusActive {
			return r
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	return newest
}
