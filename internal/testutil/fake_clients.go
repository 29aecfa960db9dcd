package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripesdk "github.com/stripe/stripe-go/v82"

	"github.com/storiqa/billing/internal/clients/payments"
	"github.com/storiqa/billing/internal/clients/saga"
	"github.com/storiqa/billing/internal/clients/stripe"
	"github.com/storiqa/billing/internal/domain/paymentintent"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// FakePaymentsClient implements payments.Client against in-memory state.
type FakePaymentsClient struct {
	mu       sync.Mutex
	Accounts []payments.Account

	// RateValue is returned by GetRate for any pair.
	RateValue decimal.Decimal
	// RefreshIsNew makes RefreshRate report a changed quote carrying
	// RateValue under a fresh exchange id.
	RefreshIsNew bool

	RateCalls    int
	RefreshCalls int
}

func NewFakePaymentsClient() *FakePaymentsClient {
	return &FakePaymentsClient{RateValue: decimal.NewFromInt(1)}
}

func (f *FakePaymentsClient) GetRate(ctx context.Context, input payments.GetRateInput) (*payments.Rate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RateCalls++
	return &payments.Rate{
		ID:     types.GenerateUUID(),
		From:   input.From,
		To:     input.To,
		Amount: input.Amount,
		Rate:   f.RateValue,
	}, nil
}

func (f *FakePaymentsClient) RefreshRate(ctx context.Context, exchangeID uuid.UUID) (*payments.RateRefresh, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalls++

	refreshed := payments.Rate{ID: exchangeID, Rate: f.RateValue}
	if f.RefreshIsNew {
		refreshed.ID = types.GenerateUUID()
	}
	return &payments.RateRefresh{Rate: refreshed, IsNewRate: f.RefreshIsNew}, nil
}

func (f *FakePaymentsClient) CreateAccount(ctx context.Context, input payments.CreateAccountInput) (*payments.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acc := payments.Account{
		ID:            input.ID,
		Currency:      input.Currency,
		WalletAddress: fmt.Sprintf("wallet-%s", input.ID),
		Name:          input.Name,
	}
	f.Accounts = append(f.Accounts, acc)
	return &acc, nil
}

func (f *FakePaymentsClient) ListAccounts(ctx context.Context) ([]payments.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]payments.Account, len(f.Accounts))
	copy(out, f.Accounts)
	return out, nil
}

func (f *FakePaymentsClient) GetAccount(ctx context.Context, accountID uuid.UUID) (*payments.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.Accounts {
		if acc.ID == accountID {
			return &acc, nil
		}
	}
	return nil, ierr.NewError("account not found").
		Mark(ierr.ErrNotFound)
}

func (f *FakePaymentsClient) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, acc := range f.Accounts {
		if acc.ID == accountID {
			f.Accounts = append(f.Accounts[:i], f.Accounts[i+1:]...)
			return nil
		}
	}
	return ierr.NewError("account not found").
		Mark(ierr.ErrNotFound)
}

// FakeStripeClient implements stripe.Client without network calls.
type FakeStripeClient struct {
	mu sync.Mutex

	CreatedIntents  []paymentintent.PaymentIntent
	CanceledIntents []string
	CapturedIntents []string
	Charges         []stripesdk.Charge

	// ChargePaid controls the outcome CreateCharge reports.
	ChargePaid bool

	nextIntent int
	nextCharge int
}

func NewFakeStripeClient() *FakeStripeClient {
	return &FakeStripeClient{ChargePaid: true}
}

func (f *FakeStripeClient) CreatePaymentIntent(ctx context.Context, input stripe.NewPaymentIntent) (*paymentintent.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextIntent++
	secret := fmt.Sprintf("pi_test_%d_secret", f.nextIntent)
	intent := paymentintent.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", f.nextIntent),
		Amount:       types.NewAmount(input.Amount),
		Currency:     input.Currency,
		ClientSecret: &secret,
		Status:       types.PaymentIntentStatusRequiresSource,
	}
	f.CreatedIntents = append(f.CreatedIntents, intent)

	cp := intent
	return &cp, nil
}

func (f *FakeStripeClient) CancelPaymentIntent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CanceledIntents = append(f.CanceledIntents, id)
	return nil
}

func (f *FakeStripeClient) CapturePaymentIntent(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CapturedIntents = append(f.CapturedIntents, id)
	return &paymentintent.PaymentIntent{
		ID:     id,
		Status: types.PaymentIntentStatusSucceeded,
	}, nil
}

func (f *FakeStripeClient) CreateCharge(ctx context.Context, input stripe.NewCharge, metadata types.Metadata) (*stripesdk.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextCharge++
	charge := stripesdk.Charge{
		ID:       fmt.Sprintf("ch_test_%d", f.nextCharge),
		Amount:   int64(input.Amount),
		Currency: stripesdk.Currency(input.Currency),
		Paid:     f.ChargePaid,
	}
	f.Charges = append(f.Charges, charge)

	cp := charge
	return &cp, nil
}

func (f *FakeStripeClient) ConstructWebhookEvent(payload []byte, sigHeader string) (*stripesdk.Event, error) {
	return nil, ierr.NewError("webhook construction is not supported by the fake").
		Mark(ierr.ErrSystem)
}

// FakeSagaClient implements saga.Client and records notifications.
type FakeSagaClient struct {
	mu           sync.Mutex
	StateUpdates [][]saga.OrderStateUpdate
	PaidBatches  []saga.OrdersPaid
}

func NewFakeSagaClient() *FakeSagaClient {
	return &FakeSagaClient{}
}

func (f *FakeSagaClient) UpdateOrdersState(ctx context.Context, updates []saga.OrderStateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StateUpdates = append(f.StateUpdates, updates)
	return nil
}

func (f *FakeSagaClient) SetOrdersPaid(ctx context.Context, input saga.OrdersPaid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PaidBatches = append(f.PaidBatches, input)
	return nil
}
