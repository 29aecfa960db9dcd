package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiqa/billing/internal/clients/payments"
	"github.com/storiqa/billing/internal/domain/invoice"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/testutil"
	"github.com/storiqa/billing/internal/types"
)

func newTestServices(t *testing.T) (service.InvoiceService, service.ServiceParams, *testutil.Stores, *testutil.Clients) {
	t.Helper()
	params, stores, clients := testutil.NewServiceParams()
	accounts := service.NewAccountService(params)
	return service.NewInvoiceService(params, accounts), params, stores, clients
}

func fiatInput(orders ...service.CreateOrderInput) service.CreateInvoiceInput {
	return service.CreateInvoiceInput{
		SagaID:        types.GenerateUUID(),
		BuyerUserID:   11,
		BuyerCurrency: types.CurrencyEUR,
		Orders:        orders,
	}
}

func eurOrder(totalCents uint64) service.CreateOrderInput {
	return service.CreateOrderInput{
		ID:             types.GenerateUUID(),
		StoreID:        1,
		SellerCurrency: types.CurrencyEUR,
		TotalAmount:    types.NewAmount(totalCents),
	}
}

func TestCreateInvoiceFiat(t *testing.T) {
	svc, _, stores, clients := newTestServices(t)
	ctx := context.Background()

	input := fiatInput(eurOrder(2500), eurOrder(1500))
	dump, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)

	// 25.00 + 15.00 EUR
	assert.True(t, dump.TotalPrice.Equal(decimal.RequireFromString("40")), "got %s", dump.TotalPrice)
	assert.False(t, dump.HasMissingRates)
	assert.Len(t, dump.Orders, 2)

	// one intent for the whole invoice, amount in cents
	require.Len(t, clients.Stripe.CreatedIntents, 1)
	intent := clients.Stripe.CreatedIntents[0]
	assert.Equal(t, "4000", intent.Amount.String())

	link, err := stores.PaymentIntent.GetInvoiceLinkByInvoiceID(ctx, input.SagaID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, link.PaymentIntentID)

	// a PaymentExpired event is scheduled for the payment window
	entries := stores.Event.Entries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Event.Payload.PaymentExpired)
	assert.Equal(t, input.SagaID, entries[0].Event.Payload.PaymentExpired.InvoiceID)
	require.NotNil(t, entries[0].ScheduledFor)
}

func TestCreateInvoiceFiatCurrencyMismatch(t *testing.T) {
	svc, _, _, _ := newTestServices(t)

	input := fiatInput(eurOrder(2500))
	input.Orders[0].SellerCurrency = types.CurrencyUSD

	_, err := svc.CreateInvoice(context.Background(), input)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestCreateInvoiceFiatCryptoMixRejected(t *testing.T) {
	svc, _, _, _ := newTestServices(t)

	input := fiatInput(service.CreateOrderInput{
		ID:             types.GenerateUUID(),
		SellerCurrency: types.CurrencySTQ,
		TotalAmount:    types.NewAmount(1000),
	})

	_, err := svc.CreateInvoice(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fiat - crypto payments are not supported yet")
}

func TestCreateInvoiceCryptoAllocatesWallet(t *testing.T) {
	svc, _, stores, clients := newTestServices(t)
	ctx := context.Background()

	clients.Payments.RateValue = decimal.NewFromInt(2) // 2 STQ per ETH

	input := service.CreateInvoiceInput{
		SagaID:        types.GenerateUUID(),
		BuyerUserID:   11,
		BuyerCurrency: types.CurrencyETH,
		Orders: []service.CreateOrderInput{{
			ID:             types.GenerateUUID(),
			SellerCurrency: types.CurrencySTQ,
			// 10 STQ
			TotalAmount: types.AmountFromSuperUnit(types.CurrencySTQ, decimal.NewFromInt(10)),
		}},
	}

	dump, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)

	// 10 STQ / 2 = 5 ETH
	assert.True(t, dump.TotalPrice.Equal(decimal.NewFromInt(5)), "got %s", dump.TotalPrice)
	require.NotNil(t, dump.WalletAddress)

	// no card intent on the crypto flow
	assert.Empty(t, clients.Stripe.CreatedIntents)

	inv, err := stores.Invoice.Get(ctx, input.SagaID)
	require.NoError(t, err)
	require.NotNil(t, inv.AccountID)

	// the wallet is cached locally under the gateway id
	acc, err := stores.Account.Get(ctx, *inv.AccountID)
	require.NoError(t, err)
	assert.Equal(t, *dump.WalletAddress, acc.WalletAddress)
}

func TestCreateInvoiceCryptoWithoutGateway(t *testing.T) {
	params, _, _ := testutil.NewServiceParams()
	params.PaymentsClient = nil
	svc := service.NewInvoiceService(params, service.NewAccountService(params))

	_, err := svc.CreateInvoice(context.Background(), service.CreateInvoiceInput{
		SagaID:        types.GenerateUUID(),
		BuyerCurrency: types.CurrencyETH,
		Orders: []service.CreateOrderInput{{
			ID:             types.GenerateUUID(),
			SellerCurrency: types.CurrencySTQ,
			TotalAmount:    types.NewAmount(1),
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments integration has not been configured")
}

// signCallback produces the wallet-gateway webhook signature over the
// raw body.
func signCallback(t *testing.T, key *secp256k1.PrivateKey, rawBody []byte) string {
	t.Helper()
	digest := sha256.Sum256(rawBody)
	sig := secpecdsa.SignCompact(key, digest[:], true)
	return hex.EncodeToString(sig[1:])
}

type inboundFixture struct {
	svc     service.InvoiceService
	params  service.ServiceParams
	stores  *testutil.Stores
	clients *testutil.Clients
	key     *secp256k1.PrivateKey
	invoice uuid.UUID
	account uuid.UUID
	// totalWei is the invoice total in buyer minor units
	totalWei types.Amount
}

func newInboundFixture(t *testing.T) *inboundFixture {
	t.Helper()
	params, stores, clients := testutil.NewServiceParams()

	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	params.Config.Payments.SignPublicKey = hex.EncodeToString(key.PubKey().SerializeCompressed())

	clients.Payments.RateValue = decimal.NewFromInt(2)

	svc := service.NewInvoiceService(params, service.NewAccountService(params))

	input := service.CreateInvoiceInput{
		SagaID:        types.GenerateUUID(),
		BuyerUserID:   11,
		BuyerCurrency: types.CurrencyETH,
		Orders: []service.CreateOrderInput{{
			ID:             types.GenerateUUID(),
			SellerCurrency: types.CurrencySTQ,
			TotalAmount:    types.AmountFromSuperUnit(types.CurrencySTQ, decimal.NewFromInt(10)),
		}},
	}
	dump, err := svc.CreateInvoice(context.Background(), input)
	require.NoError(t, err)

	inv, err := stores.Invoice.Get(context.Background(), input.SagaID)
	require.NoError(t, err)

	return &inboundFixture{
		svc:      svc,
		params:   params,
		stores:   stores,
		clients:  clients,
		key:      key,
		invoice:  input.SagaID,
		account:  *inv.AccountID,
		totalWei: types.AmountFromSuperUnit(types.CurrencyETH, dump.TotalPrice),
	}
}

func (f *inboundFixture) deliver(t *testing.T, transactionID string, amount types.Amount) error {
	t.Helper()
	cb := payments.InboundTxCallback{
		TransactionID:  transactionID,
		AmountCaptured: amount.String(),
		Currency:       types.CurrencyETH,
		AccountID:      &f.account,
	}
	rawBody, err := json.Marshal(cb)
	require.NoError(t, err)
	return f.svc.HandleInboundTx(context.Background(), signCallback(t, f.key, rawBody), cb, rawBody)
}

func TestHandleInboundTxExactPayment(t *testing.T) {
	f := newInboundFixture(t)

	require.NoError(t, f.deliver(t, "tx-1", f.totalWei))

	inv, err := f.stores.Invoice.Get(context.Background(), f.invoice)
	require.NoError(t, err)
	assert.True(t, inv.IsPaid())
	require.NotNil(t, inv.FinalAmountPaid)
	assert.True(t, inv.FinalAmountPaid.Equal(f.totalWei))

	var paidEvents int
	for _, e := range f.stores.Event.Entries() {
		if e.Event.Payload.InvoicePaid != nil {
			paidEvents++
			assert.Equal(t, f.invoice, e.Event.Payload.InvoicePaid.InvoiceID)
		}
	}
	assert.Equal(t, 1, paidEvents)
}

func TestHandleInboundTxDuplicateDelivery(t *testing.T) {
	f := newInboundFixture(t)

	half, err := f.totalWei.MulDiv(1, 2)
	require.NoError(t, err)

	require.NoError(t, f.deliver(t, "tx-1", half))
	// gateway retries the same transaction
	require.NoError(t, f.deliver(t, "tx-1", half))

	inv, err := f.stores.Invoice.Get(context.Background(), f.invoice)
	require.NoError(t, err)
	assert.False(t, inv.IsPaid())
	assert.True(t, inv.AmountCaptured.Equal(half), "got %s", inv.AmountCaptured)
}

func TestHandleInboundTxPartialThenComplete(t *testing.T) {
	f := newInboundFixture(t)

	half, err := f.totalWei.MulDiv(1, 2)
	require.NoError(t, err)
	rest := f.totalWei.BigInt()
	rest.Sub(rest, half.BigInt())
	remainder, err := types.NewAmountFromBigInt(rest)
	require.NoError(t, err)

	require.NoError(t, f.deliver(t, "tx-1", half))

	inv, err := f.stores.Invoice.Get(context.Background(), f.invoice)
	require.NoError(t, err)
	assert.False(t, inv.IsPaid())

	require.NoError(t, f.deliver(t, "tx-2", remainder))

	inv, err = f.stores.Invoice.Get(context.Background(), f.invoice)
	require.NoError(t, err)
	assert.True(t, inv.IsPaid())
}

func TestHandleInboundTxUnknownAccountDropped(t *testing.T) {
	f := newInboundFixture(t)

	unknown := types.GenerateUUID()
	cb := payments.InboundTxCallback{
		TransactionID:  "tx-1",
		AmountCaptured: "100",
		Currency:       types.CurrencyETH,
		Address:        "no-such-wallet",
		AccountID:      &unknown,
	}
	rawBody, err := json.Marshal(cb)
	require.NoError(t, err)

	// swallowed: the gateway should not retry deposits we cannot place
	err = f.svc.HandleInboundTx(context.Background(), signCallback(t, f.key, rawBody), cb, rawBody)
	assert.NoError(t, err)
}

func TestHandleInboundTxRejectsBadSignature(t *testing.T) {
	f := newInboundFixture(t)

	cb := payments.InboundTxCallback{
		TransactionID:  "tx-1",
		AmountCaptured: "100",
		Currency:       types.CurrencyETH,
		AccountID:      &f.account,
	}
	rawBody, err := json.Marshal(cb)
	require.NoError(t, err)
	sig := signCallback(t, f.key, rawBody)

	// body mutated after signing
	tampered := append([]byte{}, rawBody...)
	tampered[len(tampered)-2] ^= 0x01

	err = f.svc.HandleInboundTx(context.Background(), sig, cb, tampered)
	require.Error(t, err)
	assert.True(t, ierr.IsForbidden(err))

	inv, getErr := f.stores.Invoice.Get(context.Background(), f.invoice)
	require.NoError(t, getErr)
	assert.True(t, inv.AmountCaptured.IsZero())
}

func TestRecalcInvoiceMissingReturnsNil(t *testing.T) {
	svc, _, _, _ := newTestServices(t)

	dump, err := svc.RecalcInvoice(context.Background(), types.GenerateUUID())
	require.NoError(t, err)
	assert.Nil(t, dump)
}

func TestRecalcInvoiceMarksPaidAfterCapture(t *testing.T) {
	f := newInboundFixture(t)
	ctx := context.Background()

	// funds landed but the webhook never arrived; recalc picks them up
	_, err := f.stores.Invoice.IncreaseAmountCaptured(ctx, f.account, "tx-direct", f.totalWei)
	require.NoError(t, err)

	dump, err := f.svc.RecalcInvoice(ctx, f.invoice)
	require.NoError(t, err)
	require.NotNil(t, dump)
	assert.True(t, dump.IsPaid())

	inv, err := f.stores.Invoice.Get(ctx, f.invoice)
	require.NoError(t, err)
	assert.True(t, inv.IsPaid())
}

// staleInvoiceReads hides the paid state from reads, modeling a
// transaction whose snapshot predates a concurrent paid transition.
// Writes go to the shared store untouched.
type staleInvoiceReads struct {
	invoice.Repository
}

func (s *staleInvoiceReads) Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	inv, err := s.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.PaidAt = nil
	inv.FinalAmountPaid = nil
	inv.FinalCashbackAmount = nil
	return inv, nil
}

func TestRecalcInvoiceConcurrentPaidTransitionEnqueuesOnce(t *testing.T) {
	f := newInboundFixture(t)
	ctx := context.Background()

	_, err := f.stores.Invoice.IncreaseAmountCaptured(ctx, f.account, "tx-1", f.totalWei)
	require.NoError(t, err)

	// the first transition wins and enqueues InvoicePaid
	_, err = f.svc.RecalcInvoice(ctx, f.invoice)
	require.NoError(t, err)

	// a second transition that read the invoice before the winner
	// committed finds paid_at already set on its update and enqueues
	// nothing
	staleParams := f.params
	staleParams.InvoiceRepo = &staleInvoiceReads{Repository: f.params.InvoiceRepo}
	stale := service.NewInvoiceService(staleParams, service.NewAccountService(staleParams))

	_, err = stale.RecalcInvoice(ctx, f.invoice)
	require.NoError(t, err)

	var paidEvents int
	for _, e := range f.stores.Event.Entries() {
		if e.Event.Payload.InvoicePaid != nil {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)

	inv, err := f.stores.Invoice.Get(ctx, f.invoice)
	require.NoError(t, err)
	assert.True(t, inv.IsPaid())
}

func TestRecalcInvoiceRefreshedRateReplacesActive(t *testing.T) {
	f := newInboundFixture(t)
	ctx := context.Background()

	// the gateway quotes a new rate on refresh
	f.clients.Payments.RefreshIsNew = true
	f.clients.Payments.RateValue = decimal.NewFromInt(4)

	dump, err := f.svc.RecalcInvoice(ctx, f.invoice)
	require.NoError(t, err)
	require.NotNil(t, dump)

	// 10 STQ / 4 = 2.5 ETH under the refreshed rate
	assert.True(t, dump.TotalPrice.Equal(decimal.RequireFromString("2.5")), "got %s", dump.TotalPrice)

	orders, err := f.svc.GetInvoiceOrderIDs(ctx, f.invoice)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// exactly one active rate per order; the old one is expired, not deleted
	active, err := f.stores.Rate.GetActiveRate(ctx, orders[0])
	require.NoError(t, err)
	assert.True(t, active.Rate.Equal(decimal.NewFromInt(4)))

	history, err := f.stores.Rate.GetAllRates(ctx, orders[0])
	require.NoError(t, err)
	require.Len(t, history, 2)

	var activeCount int
	for _, r := range history {
		if r.Status == types.RateStatusActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestGetInvoiceByOrderID(t *testing.T) {
	svc, _, _, _ := newTestServices(t)
	ctx := context.Background()

	input := fiatInput(eurOrder(2500))
	_, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)

	dump, err := svc.GetInvoiceByOrderID(ctx, input.Orders[0].ID)
	require.NoError(t, err)
	require.NotNil(t, dump)
	assert.Equal(t, input.SagaID, dump.ID)

	missing, err := svc.GetInvoiceByOrderID(ctx, types.GenerateUUID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteInvoiceFiat(t *testing.T) {
	svc, _, stores, clients := newTestServices(t)
	ctx := context.Background()

	input := fiatInput(eurOrder(2500))
	_, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteInvoice(ctx, input.SagaID))

	_, err = stores.Invoice.Get(ctx, input.SagaID)
	assert.True(t, ierr.IsNotFound(err))

	orders, err := stores.Order.GetByInvoiceID(ctx, input.SagaID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// the card intent was canceled on the gateway
	require.Len(t, clients.Stripe.CanceledIntents, 1)
}

func TestDeleteInvoiceCryptoWithoutIntent(t *testing.T) {
	f := newInboundFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteInvoice(ctx, f.invoice))

	_, err := f.stores.Invoice.Get(ctx, f.invoice)
	assert.True(t, ierr.IsNotFound(err))
	assert.Empty(t, f.clients.Stripe.CanceledIntents)
}
