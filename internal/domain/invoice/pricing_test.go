package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiqa/billing/internal/domain/order"
	"github.com/storiqa/billing/internal/domain/rate"
	"github.com/storiqa/billing/internal/types"
)

func testInvoice(buyer types.Currency) *Invoice {
	return &Invoice{
		ID:             types.GenerateUUID(),
		BuyerUserID:    7,
		BuyerCurrency:  buyer,
		AmountCaptured: types.NewAmount(0),
	}
}

func testOrder(seller types.Currency, totalMinor string) *order.Order {
	total, err := types.NewAmountFromString(totalMinor)
	if err != nil {
		panic(err)
	}
	return &order.Order{
		ID:             types.GenerateUUID(),
		SellerCurrency: seller,
		TotalAmount:    total,
		CashbackAmount: types.NewAmount(0),
		State:          types.PaymentStateInitial,
	}
}

func activeRate(r string, exchangeID bool) *rate.OrderExchangeRate {
	out := &rate.OrderExchangeRate{
		Rate:      decimal.RequireFromString(r),
		Status:    types.RateStatusActive,
		CreatedAt: time.Now(),
	}
	if exchangeID {
		id := types.GenerateUUID()
		out.ExchangeID = &id
	}
	return out
}

func TestCalculateInvoicePriceCrossCurrency(t *testing.T) {
	inv := testInvoice(types.CurrencyETH)
	// 10 STQ at 2 STQ per ETH -> 5 ETH
	o := testOrder(types.CurrencySTQ, "10000000000000000000")

	dump := CalculateInvoicePrice(inv, []OrderWithRates{
		{Order: o, Rates: []*rate.OrderExchangeRate{activeRate("2", true)}},
	}, nil)

	require.Len(t, dump.Orders, 1)
	assert.False(t, dump.HasMissingRates)
	assert.True(t, dump.TotalPrice.Equal(decimal.NewFromInt(5)), "got %s", dump.TotalPrice)
	require.NotNil(t, dump.Orders[0].Price)
	assert.True(t, dump.Orders[0].Price.Equal(decimal.NewFromInt(5)))
}

func TestCalculateInvoicePriceSameCurrencyWithoutRate(t *testing.T) {
	inv := testInvoice(types.CurrencyEUR)
	o := testOrder(types.CurrencyEUR, "2500") // 25.00 EUR

	dump := CalculateInvoicePrice(inv, []OrderWithRates{{Order: o}}, nil)

	assert.False(t, dump.HasMissingRates)
	assert.True(t, dump.TotalPrice.Equal(decimal.RequireFromString("25")), "got %s", dump.TotalPrice)
	require.NotNil(t, dump.Orders[0].Rate)
	assert.True(t, dump.Orders[0].Rate.Equal(decimal.NewFromInt(1)))
	assert.Nil(t, dump.Orders[0].ExchangeID)
}

func TestCalculateInvoicePriceMissingRate(t *testing.T) {
	inv := testInvoice(types.CurrencyETH)
	priced := testOrder(types.CurrencyETH, "1000000000000000000")
	unpriced := testOrder(types.CurrencyBTC, "100000000")

	dump := CalculateInvoicePrice(inv, []OrderWithRates{
		{Order: priced},
		{Order: unpriced},
	}, nil)

	assert.True(t, dump.HasMissingRates)
	// priced order still contributes
	assert.True(t, dump.TotalPrice.Equal(decimal.NewFromInt(1)), "got %s", dump.TotalPrice)
	assert.Nil(t, dump.Orders[1].Price)
}

func TestCalculateInvoicePricePrefersActiveRate(t *testing.T) {
	inv := testInvoice(types.CurrencyETH)
	o := testOrder(types.CurrencySTQ, "10000000000000000000")

	old := activeRate("4", true)
	old.Status = types.RateStatusExpired
	old.CreatedAt = time.Now().Add(-time.Hour)
	current := activeRate("2", true)

	dump := CalculateInvoicePrice(inv, []OrderWithRates{
		{Order: o, Rates: []*rate.OrderExchangeRate{old, current}},
	}, nil)

	assert.True(t, dump.TotalPrice.Equal(decimal.NewFromInt(5)), "got %s", dump.TotalPrice)
}

func TestCalculateInvoicePriceFallsBackToNewestRate(t *testing.T) {
	inv := testInvoice(types.CurrencyETH)
	o := testOrder(types.CurrencySTQ, "10000000000000000000")

	older := activeRate("4", true)
	older.Status = types.RateStatusExpired
	older.CreatedAt = time.Now().Add(-2 * time.Hour)
	newer := activeRate("2", true)
	newer.Status = types.RateStatusExpired
	newer.CreatedAt = time.Now().Add(-time.Hour)

	dump := CalculateInvoicePrice(inv, []OrderWithRates{
		{Order: o, Rates: []*rate.OrderExchangeRate{older, newer}},
	}, nil)

	assert.False(t, dump.HasMissingRates)
	assert.True(t, dump.TotalPrice.Equal(decimal.NewFromInt(5)), "got %s", dump.TotalPrice)
}

func TestCalculateInvoicePriceCashbackInSTQ(t *testing.T) {
	inv := testInvoice(types.CurrencySTQ)
	o := testOrder(types.CurrencySTQ, "10000000000000000000")
	o.CashbackAmount = types.AmountFromSuperUnit(types.CurrencySTQ, decimal.RequireFromString("0.5"))

	dump := CalculateInvoicePrice(inv, []OrderWithRates{{Order: o}}, nil)

	assert.True(t, dump.TotalCashback.Equal(decimal.RequireFromString("0.5")), "got %s", dump.TotalCashback)
}

func TestCalculateInvoicePriceCarriesFinalFields(t *testing.T) {
	inv := testInvoice(types.CurrencyEUR)
	paidAt := time.Now().UTC()
	final := types.NewAmount(2500)
	cashback := types.NewAmount(0)
	inv.FinalAmountPaid = &final
	inv.FinalCashbackAmount = &cashback
	inv.PaidAt = &paidAt

	dump := CalculateInvoicePrice(inv, nil, nil)

	assert.True(t, dump.IsPaid())
	require.NotNil(t, dump.FinalAmountPaid)
	assert.True(t, dump.FinalAmountPaid.Equal(final))
}
