package testutil

import (
	"github.com/storiqa/billing/internal/config"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/types"
)

// Stores bundles every in-memory repository for a test.
type Stores struct {
	Invoice       *InMemoryInvoiceStore
	Order         *InMemoryOrderStore
	Rate          *InMemoryRateStore
	Account       *InMemoryAccountStore
	PaymentIntent *InMemoryPaymentIntentStore
	Fee           *InMemoryFeeStore
	Event         *InMemoryEventStore
}

// Clients bundles the fake external clients for a test.
type Clients struct {
	Payments *FakePaymentsClient
	Stripe   *FakeStripeClient
	Saga     *FakeSagaClient
}

// NewServiceParams wires in-memory stores and fake clients into a
// ServiceParams ready for service-level tests.
func NewServiceParams() (service.ServiceParams, *Stores, *Clients) {
	log, _ := logger.NewLogger(types.LogLevelError)

	cfg := config.GetDefaultConfig()
	cfg.Payments = &config.PaymentsConfig{
		URL:           "http://payments.test",
		MaxAccounts:   5,
		SignPublicKey: "",
	}

	stores := &Stores{
		Invoice:       NewInMemoryInvoiceStore(),
		Order:         NewInMemoryOrderStore(),
		Rate:          NewInMemoryRateStore(),
		Account:       NewInMemoryAccountStore(),
		PaymentIntent: NewInMemoryPaymentIntentStore(),
		Fee:           NewInMemoryFeeStore(),
		Event:         NewInMemoryEventStore(),
	}
	clients := &Clients{
		Payments: NewFakePaymentsClient(),
		Stripe:   NewFakeStripeClient(),
		Saga:     NewFakeSagaClient(),
	}

	params := service.ServiceParams{
		Logger:            log,
		Config:            cfg,
		DB:                NewMockIClient(),
		InvoiceRepo:       stores.Invoice,
		OrderRepo:         stores.Order,
		RateRepo:          stores.Rate,
		AccountRepo:       stores.Account,
		PaymentIntentRepo: stores.PaymentIntent,
		FeeRepo:           stores.Fee,
		EventRepo:         stores.Event,
		PaymentsClient:    clients.Payments,
		StripeClient:      clients.Stripe,
		SagaClient:        clients.Saga,
	}
	return params, stores, clients
}
