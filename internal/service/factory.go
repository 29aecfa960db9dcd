package service

import (
	"github.com/storiqa/billing/internal/clients/payments"
	"github.com/storiqa/billing/internal/clients/saga"
	"github.com/storiqa/billing/internal/clients/stripe"
	"github.com/storiqa/billing/internal/config"
	"github.com/storiqa/billing/internal/domain/account"
	"github.com/storiqa/billing/internal/domain/event"
	"github.com/storiqa/billing/internal/domain/fee"
	"github.com/storiqa/billing/internal/domain/invoice"
	"github.com/storiqa/billing/internal/domain/order"
	"github.com/storiqa/billing/internal/domain/paymentintent"
	"github.com/storiqa/billing/internal/domain/rate"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
)

// ServiceParams bundles everything services depend on, so constructors
// stay short and tests can swap in fakes piecemeal.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	InvoiceRepo       invoice.Repository
	OrderRepo         order.Repository
	RateRepo          rate.Repository
	AccountRepo       account.Repository
	PaymentIntentRepo paymentintent.Repository
	FeeRepo           fee.Repository
	EventRepo         event.Repository

	// External clients. PaymentsClient is nil when the crypto gateway
	// integration is not configured.
	PaymentsClient payments.Client
	StripeClient   stripe.Client
	SagaClient     saga.Client
}
