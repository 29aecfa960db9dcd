package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiqa/billing/internal/domain/fee"
	"github.com/storiqa/billing/internal/domain/order"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/testutil"
	"github.com/storiqa/billing/internal/types"
)

func seedOrderWithFee(t *testing.T, stores *testutil.Stores, status types.FeeStatus) (*order.Order, *fee.Fee) {
	t.Helper()
	ctx := context.Background()

	o := &order.Order{
		ID:             types.GenerateUUID(),
		InvoiceID:      types.GenerateUUID(),
		StoreID:        1,
		SellerCurrency: types.CurrencyEUR,
		TotalAmount:    types.NewAmount(19900),
		CashbackAmount: types.NewAmount(0),
		State:          types.PaymentStateCaptured,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, stores.Order.Create(ctx, o))

	f, err := stores.Fee.Create(ctx, fee.NewFee{
		OrderID:  o.ID,
		Amount:   types.NewAmount(995), // 5% of 199.00 EUR
		Currency: types.CurrencyEUR,
		Status:   status,
	})
	require.NoError(t, err)
	return o, f
}

func TestFeeGetByOrderID(t *testing.T) {
	params, stores, _ := testutil.NewServiceParams()
	svc := service.NewFeeService(params)

	o, seeded := seedOrderWithFee(t, stores, types.FeeStatusNotPaid)

	got, err := svc.GetByOrderID(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, seeded.ID, got.ID)
}

func TestFeeGetByOrderIDMissing(t *testing.T) {
	params, _, _ := testutil.NewServiceParams()
	svc := service.NewFeeService(params)

	got, err := svc.GetByOrderID(context.Background(), types.GenerateUUID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateChargePaid(t *testing.T) {
	params, stores, clients := testutil.NewServiceParams()
	svc := service.NewFeeService(params)

	_, seeded := seedOrderWithFee(t, stores, types.FeeStatusNotPaid)

	charged, err := svc.CreateCharge(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FeeStatusPaid, charged.Status)
	require.NotNil(t, charged.ChargeID)

	require.Len(t, clients.Stripe.Charges, 1)
	assert.Equal(t, int64(995), clients.Stripe.Charges[0].Amount)
}

func TestCreateChargeDeclined(t *testing.T) {
	params, stores, clients := testutil.NewServiceParams()
	clients.Stripe.ChargePaid = false
	svc := service.NewFeeService(params)

	_, seeded := seedOrderWithFee(t, stores, types.FeeStatusNotPaid)

	charged, err := svc.CreateCharge(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FeeStatusFail, charged.Status)
	// the failed charge id is kept for reconciliation
	require.NotNil(t, charged.ChargeID)
}

func TestCreateChargeAlreadyPaid(t *testing.T) {
	params, stores, clients := testutil.NewServiceParams()
	svc := service.NewFeeService(params)

	_, seeded := seedOrderWithFee(t, stores, types.FeeStatusPaid)

	_, err := svc.CreateCharge(context.Background(), seeded.ID)
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
	assert.Empty(t, clients.Stripe.Charges)
}

func TestCreateChargeUnknownFee(t *testing.T) {
	params, _, _ := testutil.NewServiceParams()
	svc := service.NewFeeService(params)

	_, err := svc.CreateCharge(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}
