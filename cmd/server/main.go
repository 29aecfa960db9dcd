package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/storiqa/billing/internal/api"
	v1 "github.com/storiqa/billing/internal/api/v1"
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
	"github.com/storiqa/billing/internal/events"
	"github.com/storiqa/billing/internal/httpclient"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
	repo "github.com/storiqa/billing/internal/repository/postgres"
	"github.com/storiqa/billing/internal/sentry"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/types"
)

// @title Billing API
// @version 1.0
// @description Invoice, payment and fee orchestration service
// @BasePath /v1

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			provideLogger,

			// Monitoring
			sentry.NewSentryService,

			// Postgres
			postgres.NewDB,
			postgres.NewClient,

			// HTTP Client
			httpclient.NewDefaultClient,

			// Repositories
			repo.NewInvoiceRepository,
			repo.NewOrderRepository,
			repo.NewRateRepository,
			repo.NewAccountRepository,
			repo.NewPaymentIntentRepository,
			repo.NewFeeRepository,
			repo.NewEventRepository,

			// External clients
			providePaymentsClient,
			provideStripeClient,
			provideSagaClient,

			// Services
			provideServiceParams,
			service.NewAccountService,
			provideInvoiceService,
			service.NewFeeService,

			// Event engine
			events.NewHandler,
			events.NewEngine,

			// API
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			events.RegisterHooks,
			startServer,
		),
	)
	app.Run()
}

func provideLogger(cfg *config.Configuration) (*logger.Logger, error) {
	return logger.NewLogger(cfg.Logging.Level)
}

// providePaymentsClient returns nil when the crypto gateway is not
// configured; crypto operations then fail with a configuration error
// instead of the whole service refusing to start.
func providePaymentsClient(
	cfg *config.Configuration,
	http httpclient.Client,
	log *logger.Logger,
) (payments.Client, error) {
	if !cfg.PaymentsEnabled() {
		log.Warn("payments gateway is not configured, crypto invoices are disabled")
		return nil, nil
	}
	return payments.NewClient(cfg.Payments, http, log)
}

func provideStripeClient(cfg *config.Configuration, log *logger.Logger) stripe.Client {
	return stripe.NewClient(cfg.Stripe, log)
}

func provideSagaClient(cfg *config.Configuration, http httpclient.Client, log *logger.Logger) saga.Client {
	return saga.NewClient(cfg.Saga, http, log)
}

func provideServiceParams(
	log *logger.Logger,
	cfg *config.Configuration,
	db postgres.IClient,
	invoiceRepo invoice.Repository,
	orderRepo order.Repository,
	rateRepo rate.Repository,
	accountRepo account.Repository,
	paymentIntentRepo paymentintent.Repository,
	feeRepo fee.Repository,
	eventRepo event.Repository,
	paymentsClient payments.Client,
	stripeClient stripe.Client,
	sagaClient saga.Client,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:            log,
		Config:            cfg,
		DB:                db,
		InvoiceRepo:       invoiceRepo,
		OrderRepo:         orderRepo,
		RateRepo:          rateRepo,
		AccountRepo:       accountRepo,
		PaymentIntentRepo: paymentIntentRepo,
		FeeRepo:           feeRepo,
		EventRepo:         eventRepo,
		PaymentsClient:    paymentsClient,
		StripeClient:      stripeClient,
		SagaClient:        sagaClient,
	}
}

func provideInvoiceService(params service.ServiceParams, accounts service.AccountService) service.InvoiceService {
	return service.NewInvoiceService(params, accounts)
}

func provideHandlers(
	log *logger.Logger,
	invoiceService service.InvoiceService,
	feeService service.FeeService,
	stripeClient stripe.Client,
	eventRepo event.Repository,
) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(log),
		Invoice: v1.NewInvoiceHandler(invoiceService, log),
		Fee:     v1.NewFeeHandler(feeService, log),
		Webhook: v1.NewWebhookHandler(invoiceService, stripeClient, eventRepo, log),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration) *gin.Engine {
	if cfg.Deployment.Mode == types.ModeProd {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter(handlers)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow("starting server", "address", cfg.Server.Address)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalw("server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			return srv.Shutdown(ctx)
		},
	})
}
