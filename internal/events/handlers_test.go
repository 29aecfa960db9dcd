package events

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiqa/billing/internal/domain/event"
	"github.com/storiqa/billing/internal/domain/fee"
	"github.com/storiqa/billing/internal/domain/invoice"
	"github.com/storiqa/billing/internal/domain/order"
	"github.com/storiqa/billing/internal/domain/paymentintent"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/testutil"
	"github.com/storiqa/billing/internal/types"
)

func newTestHandler(t *testing.T) (*Handler, service.ServiceParams, *testutil.Stores, *testutil.Clients) {
	t.Helper()
	params, stores, clients := testutil.NewServiceParams()
	return NewHandler(params), params, stores, clients
}

func seedInvoice(t *testing.T, stores *testutil.Stores, buyer types.Currency, orders ...*order.Order) *invoice.Invoice {
	t.Helper()
	ctx := context.Background()

	inv := &invoice.Invoice{
		ID:             types.GenerateUUID(),
		BuyerUserID:    1,
		BuyerCurrency:  buyer,
		AmountCaptured: types.NewAmount(0),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, stores.Invoice.Create(ctx, inv))

	for i, o := range orders {
		o.InvoiceID = inv.ID
		if o.State == "" {
			o.State = types.PaymentStateInitial
		}
		o.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, stores.Order.Create(ctx, o))
	}
	return inv
}

func eurOrder(totalCents uint64) *order.Order {
	return &order.Order{
		ID:             types.GenerateUUID(),
		StoreID:        1,
		SellerCurrency: types.CurrencyEUR,
		TotalAmount:    types.NewAmount(totalCents),
		CashbackAmount: types.NewAmount(0),
	}
}

func testIntent(id string) *paymentintent.PaymentIntent {
	chargeID := "ch_" + id
	return &paymentintent.PaymentIntent{
		ID:             id,
		Amount:         types.NewAmount(4000),
		AmountReceived: types.NewAmount(4000),
		Currency:       types.CurrencyEUR,
		ChargeID:       &chargeID,
		Status:         types.PaymentIntentStatusSucceeded,
		CreatedAt:      time.Now().UTC(),
	}
}

func handle(t *testing.T, h *Handler, p event.Payload) error {
	t.Helper()
	return h.Handle(context.Background(), event.NewEvent(p))
}

func TestHandleInvoicePaid(t *testing.T) {
	h, _, stores, clients := newTestHandler(t)
	ctx := context.Background()

	captured := eurOrder(1000)
	captured.State = types.PaymentStateCaptured
	inv := seedInvoice(t, stores, types.CurrencyEUR, eurOrder(2500), captured)

	require.NoError(t, handle(t, h, event.Payload{
		InvoicePaid: &event.InvoicePaid{InvoiceID: inv.ID},
	}))

	orders, err := stores.Order.GetByInvoiceID(ctx, inv.ID)
	require.NoError(t, err)
	for _, o := range orders {
		assert.Equal(t, types.PaymentStateCaptured, o.State)
	}

	require.Len(t, clients.Saga.PaidBatches, 1)
	assert.Equal(t, inv.ID, clients.Saga.PaidBatches[0].InvoiceID)
	// all orders are reported, including ones already captured
	assert.Len(t, clients.Saga.PaidBatches[0].OrderIDs, 2)
}

func TestHandlePaymentIntentSucceededRecognizesFees(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)
	ctx := context.Background()

	inv := seedInvoice(t, stores, types.CurrencyEUR, eurOrder(19900))
	intent := testIntent("pi_1")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	require.NoError(t, handle(t, h, event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	}))

	orders, err := stores.Order.GetByInvoiceID(ctx, inv.ID)
	require.NoError(t, err)
	f, err := stores.Fee.GetByOrderID(ctx, orders[0].ID)
	require.NoError(t, err)

	// 5% of 199.00 EUR: 19900/100 = 199, truncated, times 5
	assert.Equal(t, "995", f.Amount.String())
	assert.Equal(t, types.CurrencyEUR, f.Currency)
	assert.Equal(t, types.FeeStatusNotPaid, f.Status)
}

func countInvoicePaid(stores *testutil.Stores) int {
	n := 0
	for _, e := range stores.Event.Entries() {
		if e.Event.Payload.InvoicePaid != nil {
			n++
		}
	}
	return n
}

func TestHandlePaymentIntentSucceededMarksInvoicePaid(t *testing.T) {
	h, _, stores, clients := newTestHandler(t)
	ctx := context.Background()

	o := eurOrder(4000)
	inv := seedInvoice(t, stores, types.CurrencyEUR, o)
	intent := testIntent("pi_1")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	p := event.Payload{PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent}}
	require.NoError(t, handle(t, h, p))

	stored, err := stores.Invoice.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, stored.IsPaid())
	require.NotNil(t, stored.FinalAmountPaid)
	assert.Equal(t, "4000", stored.FinalAmountPaid.String())
	assert.Equal(t, 1, countInvoicePaid(stores))

	// a redelivered success neither re-marks nor re-enqueues
	require.NoError(t, handle(t, h, p))
	assert.Equal(t, 1, countInvoicePaid(stores))

	// the scheduled expiry still fires but must leave the paid invoice alone
	require.NoError(t, handle(t, h, event.Payload{
		PaymentExpired: &event.PaymentExpired{InvoiceID: inv.ID},
	}))
	got, err := stores.Order.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStateInitial, got.State)
	assert.Empty(t, clients.Stripe.CanceledIntents)
	assert.Empty(t, clients.Saga.StateUpdates)
}

func TestHandlePaymentIntentSucceededFeeMathTruncates(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)
	ctx := context.Background()

	inv := seedInvoice(t, stores, types.CurrencyEUR, eurOrder(199))
	intent := testIntent("pi_1")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	require.NoError(t, handle(t, h, event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	}))

	orders, err := stores.Order.GetByInvoiceID(ctx, inv.ID)
	require.NoError(t, err)
	f, err := stores.Fee.GetByOrderID(ctx, orders[0].ID)
	require.NoError(t, err)

	// 199/100 truncates to 1 before the multiply, so the fee is 5 not 9
	assert.Equal(t, "5", f.Amount.String())
}

func TestHandlePaymentIntentSucceededCryptoOrderFee(t *testing.T) {
	h, params, stores, _ := newTestHandler(t)
	ctx := context.Background()

	params.Config.Fee.CryptoRates = map[string]float64{"stq": 0.02}

	o := &order.Order{
		ID:             types.GenerateUUID(),
		StoreID:        1,
		SellerCurrency: types.CurrencySTQ,
		// 100 STQ
		TotalAmount:    types.AmountFromSuperUnit(types.CurrencySTQ, decimal.NewFromInt(100)),
		CashbackAmount: types.NewAmount(0),
	}
	inv := seedInvoice(t, stores, types.CurrencySTQ, o)
	intent := testIntent("pi_1")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	require.NoError(t, handle(t, h, event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	}))

	f, err := stores.Fee.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)

	// 5% of 100 STQ = 5 STQ, converted at 0.02 EUR/STQ = 0.10 EUR
	assert.Equal(t, types.CurrencyEUR, f.Currency)
	assert.Equal(t, "10", f.Amount.String())
	require.NotNil(t, f.CryptoCurrency)
	assert.Equal(t, types.CurrencySTQ, *f.CryptoCurrency)
	require.NotNil(t, f.CryptoAmount)
	assert.True(t, f.CryptoAmount.Equal(types.AmountFromSuperUnit(types.CurrencySTQ, decimal.NewFromInt(5))))
}

func TestHandlePaymentIntentSucceededCryptoRateMissing(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)
	ctx := context.Background()

	o := &order.Order{
		ID:             types.GenerateUUID(),
		SellerCurrency: types.CurrencyBTC,
		TotalAmount:    types.NewAmount(100000000),
		CashbackAmount: types.NewAmount(0),
	}
	inv := seedInvoice(t, stores, types.CurrencyBTC, o)
	intent := testIntent("pi_1")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	err := handle(t, h, event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fee conversion rate for currency")
}

func TestRecognizeInvoiceFeesRerunSkipsExisting(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)
	ctx := context.Background()

	inv := seedInvoice(t, stores, types.CurrencyEUR, eurOrder(19900))
	intent := testIntent("pi_1")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	p := event.Payload{PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent}}
	require.NoError(t, handle(t, h, p))
	require.NoError(t, handle(t, h, p))

	orders, err := stores.Order.GetByInvoiceID(ctx, inv.ID)
	require.NoError(t, err)
	f, err := stores.Fee.GetByOrderID(ctx, orders[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "995", f.Amount.String())
}

func TestHandlePaymentIntentSucceededFeeLink(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)
	ctx := context.Background()

	o := eurOrder(19900)
	seedInvoice(t, stores, types.CurrencyEUR, o)
	f, err := stores.Fee.Create(ctx, fee.NewFee{
		OrderID:  o.ID,
		Amount:   types.NewAmount(995),
		Currency: types.CurrencyEUR,
		Status:   types.FeeStatusNotPaid,
	})
	require.NoError(t, err)

	intent := testIntent("pi_fee")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkFee(ctx, f.ID, intent.ID))

	require.NoError(t, handle(t, h, event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	}))

	updated, err := stores.Fee.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FeeStatusPaid, updated.Status)
	require.NotNil(t, updated.ChargeID)
	assert.Equal(t, *intent.ChargeID, *updated.ChargeID)
}

func TestHandlePaymentIntentSucceededUnlinked(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)

	intent := testIntent("pi_orphan")
	require.NoError(t, stores.PaymentIntent.Create(context.Background(), intent))

	err := handle(t, h, event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not linked to an invoice or a fee")
}

func TestHandleAmountCapturableUpdatedReplaysAsSucceeded(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)

	intent := testIntent("pi_1")
	require.NoError(t, handle(t, h, event.Payload{
		PaymentIntentAmountCapturableUpdated: &event.PaymentIntentAmountCapturableUpdated{PaymentIntent: *intent},
	}))

	entries := stores.Event.Entries()
	require.Len(t, entries, 1)
	succeeded := entries[0].Event.Payload.PaymentIntentSucceeded
	require.NotNil(t, succeeded)
	assert.Equal(t, intent.ID, succeeded.PaymentIntent.ID)

	// the intent itself was stored on the way through
	stored, err := stores.PaymentIntent.Get(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.Status, stored.Status)
}

func TestHandlePaymentFailedStoresIntent(t *testing.T) {
	h, _, stores, _ := newTestHandler(t)

	msg := "card declined"
	intent := testIntent("pi_1")
	intent.Status = types.PaymentIntentStatusRequiresSource
	intent.LastPaymentErrorMessage = &msg

	require.NoError(t, handle(t, h, event.Payload{
		PaymentIntentPaymentFailed: &event.PaymentIntentPaymentFailed{PaymentIntent: *intent},
	}))

	stored, err := stores.PaymentIntent.Get(context.Background(), intent.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastPaymentErrorMessage)
	assert.Equal(t, msg, *stored.LastPaymentErrorMessage)
}

func TestHandlePaymentIntentCapture(t *testing.T) {
	h, _, stores, clients := newTestHandler(t)
	ctx := context.Background()

	o := eurOrder(2500)
	inv := seedInvoice(t, stores, types.CurrencyEUR, o)
	intent := testIntent("pi_1")
	intent.Status = types.PaymentIntentStatusRequiresCapture
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	require.NoError(t, handle(t, h, event.Payload{
		PaymentIntentCapture: &event.PaymentIntentCapture{OrderID: o.ID},
	}))

	require.Len(t, clients.Stripe.CapturedIntents, 1)
	assert.Equal(t, intent.ID, clients.Stripe.CapturedIntents[0])

	stored, err := stores.PaymentIntent.Get(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentIntentStatusSucceeded, stored.Status)
}

func TestHandlePaymentExpired(t *testing.T) {
	h, _, stores, clients := newTestHandler(t)
	ctx := context.Background()

	captured := eurOrder(1000)
	captured.State = types.PaymentStateCaptured
	pending := eurOrder(2500)
	inv := seedInvoice(t, stores, types.CurrencyEUR, captured, pending)

	intent := testIntent("pi_1")
	require.NoError(t, stores.PaymentIntent.Create(ctx, intent))
	require.NoError(t, stores.PaymentIntent.LinkInvoice(ctx, inv.ID, intent.ID))

	require.NoError(t, handle(t, h, event.Payload{
		PaymentExpired: &event.PaymentExpired{InvoiceID: inv.ID},
	}))

	got, err := stores.Order.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStateExpired, got.State)

	// the captured order is untouched
	got, err = stores.Order.Get(ctx, captured.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStateCaptured, got.State)

	require.Len(t, clients.Saga.StateUpdates, 1)
	require.Len(t, clients.Saga.StateUpdates[0], 1)
	assert.Equal(t, pending.ID, clients.Saga.StateUpdates[0][0].OrderID)

	require.Len(t, clients.Stripe.CanceledIntents, 1)
	assert.Equal(t, intent.ID, clients.Stripe.CanceledIntents[0])
}

func TestHandlePaymentExpiredPaidInvoiceUntouched(t *testing.T) {
	h, _, stores, clients := newTestHandler(t)
	ctx := context.Background()

	o := eurOrder(2500)
	inv := seedInvoice(t, stores, types.CurrencyEUR, o)
	_, err := stores.Invoice.SetPaid(ctx, inv.ID, invoice.SetPaidInput{
		FinalAmountPaid:     types.NewAmount(2500),
		FinalCashbackAmount: types.NewAmount(0),
		PaidAt:              time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, handle(t, h, event.Payload{
		PaymentExpired: &event.PaymentExpired{InvoiceID: inv.ID},
	}))

	got, err := stores.Order.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStateInitial, got.State)
	assert.Empty(t, clients.Saga.StateUpdates)
}

func TestHandlePaymentExpiredDeletedInvoice(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	require.NoError(t, handle(t, h, event.Payload{
		PaymentExpired: &event.PaymentExpired{InvoiceID: types.GenerateUUID()},
	}))
}

func TestHandleNoOp(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	require.NoError(t, handle(t, h, event.Payload{NoOp: &event.NoOp{}}))
}
