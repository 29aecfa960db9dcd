package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/storiqa/billing/internal/clients/payments"
	"github.com/storiqa/billing/internal/clients/stripe"
	"github.com/storiqa/billing/internal/domain/event"
	"github.com/storiqa/billing/internal/domain/invoice"
	"github.com/storiqa/billing/internal/domain/order"
	"github.com/storiqa/billing/internal/domain/paymentintent"
	"github.com/storiqa/billing/internal/domain/rate"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// CreateOrderInput is one store's line in a new invoice. TotalAmount is
// in the seller currency's minor unit; CashbackPercent is a fraction in
// [0, 1).
type CreateOrderInput struct {
	ID              uuid.UUID        `json:"id" binding:"required"`
	StoreID         int64            `json:"store_id"`
	SellerCurrency  types.Currency   `json:"currency" binding:"required"`
	TotalAmount     types.Amount     `json:"total_amount"`
	CashbackPercent *decimal.Decimal `json:"product_cashback,omitempty"`
}

// CreateInvoiceInput creates an invoice for a saga checkout. The saga id
// becomes the invoice id.
type CreateInvoiceInput struct {
	SagaID        uuid.UUID          `json:"saga_id" binding:"required"`
	BuyerUserID   int64              `json:"customer_id"`
	BuyerCurrency types.Currency     `json:"currency" binding:"required"`
	Orders        []CreateOrderInput `json:"orders" binding:"required,min=1"`
}

// InvoiceService orchestrates the payment lifecycle: invoice creation,
// recalculation, deletion, and reconciliation of inbound gateway
// transactions.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*invoice.Dump, error)
	// GetInvoice returns the invoice priced at current rates, or nil when
	// it does not exist.
	GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Dump, error)
	GetInvoiceByOrderID(ctx context.Context, orderID uuid.UUID) (*invoice.Dump, error)
	GetInvoiceOrderIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	// RecalcInvoice refreshes rates, recomputes the total and freezes the
	// final price when the invoice turns out fully captured. Returns nil
	// when the invoice does not exist.
	RecalcInvoice(ctx context.Context, id uuid.UUID) (*invoice.Dump, error)
	DeleteInvoice(ctx context.Context, sagaID uuid.UUID) error
	// HandleInboundTx reconciles a crypto gateway deposit callback.
	HandleInboundTx(ctx context.Context, signHeader string, callback payments.InboundTxCallback, rawBody []byte) error
}

type invoiceService struct {
	ServiceParams
	accounts AccountService
}

func NewInvoiceService(params ServiceParams, accounts AccountService) InvoiceService {
	return &invoiceService{ServiceParams: params, accounts: accounts}
}

var errPaymentsNotConfigured = ierr.NewError("payments integration has not been configured").
	WithHint("The crypto payments gateway is not configured").
	Mark(ierr.ErrSystem)

func (s *invoiceService) requirePayments() (payments.Client, error) {
	if s.PaymentsClient == nil {
		return nil, errPaymentsNotConfigured
	}
	return s.PaymentsClient, nil
}

// pricedOrder is an order with its initial exchange rate, before any of
// it is persisted.
type pricedOrder struct {
	order      *order.Order
	exchangeID *uuid.UUID
	rate       decimal.Decimal
}

func (s *invoiceService) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*invoice.Dump, error) {
	if err := input.BuyerCurrency.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	priced := make([]pricedOrder, 0, len(input.Orders))
	for _, in := range input.Orders {
		o := &order.Order{
			ID:             in.ID,
			InvoiceID:      input.SagaID,
			StoreID:        in.StoreID,
			SellerCurrency: in.SellerCurrency,
			TotalAmount:    in.TotalAmount,
			CashbackAmount: cashbackAmount(in),
			State:          types.PaymentStateInitial,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := o.Validate(); err != nil {
			return nil, err
		}

		exchangeID, exchangeRate, err := s.exchangeRate(ctx, input.BuyerCurrency, o)
		if err != nil {
			return nil, err
		}
		priced = append(priced, pricedOrder{order: o, exchangeID: exchangeID, rate: exchangeRate})
	}

	// Remote allocations happen before the transaction; no connection is
	// held across gateway calls.
	var (
		newIntent     *stripe.NewPaymentIntent
		accountID     *uuid.UUID
		walletAddress *string
		expiryTimeout time.Duration
	)
	if input.BuyerCurrency.IsFiat() {
		params, err := s.paymentIntentParams(priced, input.SagaID)
		if err != nil {
			return nil, err
		}
		params.Currency = input.BuyerCurrency
		newIntent = params
		expiryTimeout = s.Config.PaymentExpiry.FiatTimeout()
	} else {
		acc, err := s.accounts.GetOrCreateFreePooledAccount(ctx, input.BuyerCurrency)
		if err != nil {
			return nil, err
		}
		accountID = &acc.ID
		walletAddress = &acc.WalletAddress
		expiryTimeout = s.Config.PaymentExpiry.CryptoTimeout()
	}

	var intent *paymentintent.PaymentIntent
	if newIntent != nil {
		created, err := s.StripeClient.CreatePaymentIntent(ctx, *newIntent)
		if err != nil {
			return nil, err
		}
		intent = created
	}

	var dump *invoice.Dump
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		expired := event.NewEvent(event.Payload{
			PaymentExpired: &event.PaymentExpired{InvoiceID: input.SagaID},
		})
		if err := s.EventRepo.AddScheduledEvent(ctx, expired, now.Add(expiryTimeout)); err != nil {
			return err
		}

		inv := &invoice.Invoice{
			ID:             input.SagaID,
			BuyerUserID:    input.BuyerUserID,
			BuyerCurrency:  input.BuyerCurrency,
			AmountCaptured: types.NewAmount(0),
			AccountID:      accountID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return err
		}

		if intent != nil {
			if err := s.PaymentIntentRepo.Create(ctx, intent); err != nil {
				return err
			}
			if err := s.PaymentIntentRepo.LinkInvoice(ctx, inv.ID, intent.ID); err != nil {
				return err
			}
		}

		withRates := make([]invoice.OrderWithRates, 0, len(priced))
		for _, po := range priced {
			if err := s.OrderRepo.Create(ctx, po.order); err != nil {
				return err
			}
			created, err := s.RateRepo.AddActiveRate(ctx, rate.NewRate{
				OrderID:    po.order.ID,
				ExchangeID: po.exchangeID,
				Rate:       po.rate,
			})
			if err != nil {
				return err
			}
			withRates = append(withRates, invoice.OrderWithRates{
				Order: po.order,
				Rates: []*rate.OrderExchangeRate{created},
			})
		}

		dump = invoice.CalculateInvoicePrice(inv, withRates, walletAddress)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice created",
		"invoice_id", input.SagaID,
		"buyer_currency", input.BuyerCurrency,
		"orders", len(input.Orders),
		"total_price", dump.TotalPrice.String(),
	)
	return dump, nil
}

func cashbackAmount(in CreateOrderInput) types.Amount {
	if in.CashbackPercent == nil {
		return types.NewAmount(0)
	}
	cashback := in.TotalAmount.ToSuperUnit(in.SellerCurrency).Mul(*in.CashbackPercent)
	return types.AmountFromSuperUnit(in.SellerCurrency, cashback)
}

// exchangeRate computes the initial (exchange_id, rate) pair for an
// order. Fiat pairs must match the buyer currency exactly; crypto pairs
// reserve a quote on the gateway unless the currencies coincide.
func (s *invoiceService) exchangeRate(ctx context.Context, buyer types.Currency, o *order.Order) (*uuid.UUID, decimal.Decimal, error) {
	seller := o.SellerCurrency
	switch {
	case buyer.IsFiat() && seller.IsFiat():
		if buyer != seller {
			return nil, decimal.Zero, ierr.NewError("buyer and seller currency are not the same").
				WithHint("Fiat invoices must be priced in the seller's currency").
				WithReportableDetails(map[string]interface{}{
					"buyer_currency":  buyer,
					"seller_currency": seller,
				}).
				Mark(ierr.ErrValidation)
		}
		return nil, decimal.NewFromInt(1), nil

	case buyer.IsCrypto() && seller.IsCrypto():
		if buyer == seller {
			return nil, decimal.NewFromInt(1), nil
		}
		client, err := s.requirePayments()
		if err != nil {
			return nil, decimal.Zero, err
		}
		reserved, err := client.GetRate(ctx, payments.GetRateInput{
			ID:             types.GenerateUUID(),
			From:           buyer,
			To:             seller,
			AmountCurrency: seller,
			Amount:         o.TotalAmount,
		})
		if err != nil {
			return nil, decimal.Zero, err
		}
		exchangeID := reserved.ID
		return &exchangeID, reserved.Rate, nil

	default:
		return nil, decimal.Zero, ierr.NewError("fiat - crypto payments are not supported yet").
			WithReportableDetails(map[string]interface{}{
				"buyer_currency":  buyer,
				"seller_currency": seller,
			}).
			Mark(ierr.ErrSystem)
	}
}

// paymentIntentParams sums the orders' minor-unit totals divided by their
// rates into the intent amount. The sum must fit an unsigned integer.
func (s *invoiceService) paymentIntentParams(priced []pricedOrder, invoiceID uuid.UUID) (*stripe.NewPaymentIntent, error) {
	exchanged := decimal.Zero
	for _, po := range priced {
		sellerPrice := decimal.NewFromBigInt(po.order.TotalAmount.BigInt(), 0)
		exchanged = exchanged.Add(sellerPrice.Div(po.rate))
	}

	amount, err := types.NewAmountFromBigInt(exchanged.BigInt())
	if err != nil {
		return nil, ierr.NewError("cannot convert invoice total to intent amount").
			WithHintf("Invoice %s total %s does not convert to minor units", invoiceID, exchanged).
			Mark(ierr.ErrSystem)
	}
	minor, err := amount.ToUint64()
	if err != nil {
		return nil, ierr.NewError("cannot convert invoice total to intent amount").
			WithHintf("Invoice %s total %s does not fit the gateway amount", invoiceID, exchanged).
			Mark(ierr.ErrSystem)
	}

	return &stripe.NewPaymentIntent{Amount: minor}, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Dump, error) {
	return s.RecalcInvoice(ctx, id)
}

func (s *invoiceService) GetInvoiceByOrderID(ctx context.Context, orderID uuid.UUID) (*invoice.Dump, error) {
	o, err := s.OrderRepo.Get(ctx, orderID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	dump, err := s.RecalcInvoice(ctx, o.InvoiceID)
	if err != nil {
		return nil, err
	}
	if dump == nil {
		return nil, ierr.NewError("order exists but its invoice does not").
			WithReportableDetails(map[string]interface{}{
				"order_id":   orderID,
				"invoice_id": o.InvoiceID,
			}).
			Mark(ierr.ErrSystem)
	}
	return dump, nil
}

func (s *invoiceService) GetInvoiceOrderIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	orders, err := s.OrderRepo.GetByInvoiceID(ctx, id)
	if err != nil {
		return nil, err
	}
	return lo.Map(orders, func(o *order.Order, _ int) uuid.UUID {
		return o.ID
	}), nil
}

func (s *invoiceService) RecalcInvoice(ctx context.Context, id uuid.UUID) (*invoice.Dump, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	// Paid invoices keep their stored prices; no rate refresh, no writes.
	if inv.IsPaid() {
		withRates, err := s.orderActiveRates(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		walletAddress, err := s.walletAddress(ctx, inv)
		if err != nil {
			return nil, err
		}
		return invoice.CalculateInvoicePrice(inv, withRates, walletAddress), nil
	}

	if inv.BuyerCurrency.IsCrypto() {
		if err := s.refreshRates(ctx, inv); err != nil {
			return nil, err
		}
	}

	return s.calculateAndSetFinalPriceIfPaid(ctx, inv.ID)
}

// orderActiveRates loads each order of the invoice with its Active rate
// (empty rate list when none).
func (s *invoiceService) orderActiveRates(ctx context.Context, invoiceID uuid.UUID) ([]invoice.OrderWithRates, error) {
	orders, err := s.OrderRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	withRates := make([]invoice.OrderWithRates, 0, len(orders))
	for _, o := range orders {
		active, err := s.RateRepo.GetActiveRate(ctx, o.ID)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
		var rates []*rate.OrderExchangeRate
		if active != nil {
			rates = []*rate.OrderExchangeRate{active}
		}
		withRates = append(withRates, invoice.OrderWithRates{Order: o, Rates: rates})
	}
	return withRates, nil
}

func (s *invoiceService) walletAddress(ctx context.Context, inv *invoice.Invoice) (*string, error) {
	if inv.AccountID == nil {
		return nil, nil
	}
	acc, err := s.AccountRepo.Get(ctx, *inv.AccountID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.NewError("invoice account is missing from the ledger").
				WithReportableDetails(map[string]interface{}{
					"invoice_id": inv.ID,
					"account_id": *inv.AccountID,
				}).
				Mark(ierr.ErrSystem)
		}
		return nil, err
	}
	return &acc.WalletAddress, nil
}

// refreshRates reserves missing rates and refreshes reserved ones,
// saving only the rates that actually changed. Dummy 1:1 rates are left
// alone.
func (s *invoiceService) refreshRates(ctx context.Context, inv *invoice.Invoice) error {
	client, err := s.requirePayments()
	if err != nil {
		return err
	}

	withRates, err := s.orderActiveRates(ctx, inv.ID)
	if err != nil {
		return err
	}

	for _, ow := range withRates {
		var current *rate.OrderExchangeRate
		if len(ow.Rates) > 0 {
			current = ow.Rates[0]
		}
		newRate, err := s.reserveOrRefreshRate(ctx, client, inv.BuyerCurrency, ow.Order, current)
		if err != nil {
			return err
		}
		if newRate == nil {
			continue
		}
		if _, err := s.RateRepo.AddActiveRate(ctx, *newRate); err != nil {
			return err
		}
	}
	return nil
}

// reserveOrRefreshRate returns the replacement rate for an order, or nil
// when the current one still stands.
func (s *invoiceService) reserveOrRefreshRate(
	ctx context.Context,
	client payments.Client,
	buyer types.Currency,
	o *order.Order,
	current *rate.OrderExchangeRate,
) (*rate.NewRate, error) {
	if current == nil {
		exchangeID, exchangeRate, err := s.exchangeRate(ctx, buyer, o)
		if err != nil {
			return nil, err
		}
		return &rate.NewRate{OrderID: o.ID, ExchangeID: exchangeID, Rate: exchangeRate}, nil
	}

	// A rate without an exchange id is the dummy 1:1; nothing to refresh.
	if current.IsDummy() {
		return nil, nil
	}

	refresh, err := client.RefreshRate(ctx, *current.ExchangeID)
	if err != nil {
		return nil, err
	}
	if !refresh.IsNewRate {
		return nil, nil
	}

	exchangeID := refresh.Rate.ID
	return &rate.NewRate{OrderID: o.ID, ExchangeID: &exchangeID, Rate: refresh.Rate.Rate}, nil
}

// calculateAndSetFinalPriceIfPaid recomputes the total inside one
// transaction and, when the captured amount covers it, freezes the final
// price and enqueues InvoicePaid. Only the SetPaid winner enqueues; a
// concurrent caller that loses the paid_at guard gets ErrAlreadyApplied
// from the repository and reads the stored finals instead.
func (s *invoiceService) calculateAndSetFinalPriceIfPaid(ctx context.Context, id uuid.UUID) (*invoice.Dump, error) {
	var dump *invoice.Dump

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.InvoiceRepo.Get(ctx, id)
		if err != nil {
			return err
		}

		dump, err = s.invoicePrice(ctx, inv)
		if err != nil {
			return err
		}

		if inv.IsPaid() {
			return nil
		}

		hasBecomePaid := !dump.HasMissingRates &&
			inv.AmountCaptured.ToSuperUnit(inv.BuyerCurrency).Cmp(dump.TotalPrice) >= 0
		if !hasBecomePaid {
			return nil
		}

		input := invoice.SetPaidInput{
			FinalAmountPaid:     types.AmountFromSuperUnit(inv.BuyerCurrency, dump.TotalPrice),
			FinalCashbackAmount: types.AmountFromSuperUnit(types.CurrencySTQ, dump.TotalCashback),
			PaidAt:              time.Now().UTC(),
		}
		updated, err := s.InvoiceRepo.SetPaid(ctx, inv.ID, input)
		if ierr.IsAlreadyApplied(err) {
			// Lost the race: someone else froze the finals between our
			// read and the update. Their transition owns the event.
			updated, err = s.InvoiceRepo.Get(ctx, inv.ID)
			if err != nil {
				return err
			}
			dump.FinalAmountPaid = updated.FinalAmountPaid
			dump.FinalCashbackAmount = updated.FinalCashbackAmount
			dump.PaidAt = updated.PaidAt
			return nil
		}
		if err != nil {
			return err
		}

		paid := event.NewEvent(event.Payload{
			InvoicePaid: &event.InvoicePaid{InvoiceID: inv.ID},
		})
		if err := s.EventRepo.AddEvent(ctx, paid); err != nil {
			return err
		}

		dump.FinalAmountPaid = updated.FinalAmountPaid
		dump.FinalCashbackAmount = updated.FinalCashbackAmount
		dump.PaidAt = updated.PaidAt

		s.Logger.Infow("invoice paid",
			"invoice_id", inv.ID,
			"final_amount_paid", input.FinalAmountPaid.String(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dump, nil
}

// invoicePrice prices the invoice from its full rate history.
func (s *invoiceService) invoicePrice(ctx context.Context, inv *invoice.Invoice) (*invoice.Dump, error) {
	orders, err := s.OrderRepo.GetByInvoiceID(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	withRates := make([]invoice.OrderWithRates, 0, len(orders))
	for _, o := range orders {
		rates, err := s.RateRepo.GetAllRates(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		withRates = append(withRates, invoice.OrderWithRates{Order: o, Rates: rates})
	}

	walletAddress, err := s.walletAddress(ctx, inv)
	if err != nil {
		return nil, err
	}
	return invoice.CalculateInvoicePrice(inv, withRates, walletAddress), nil
}

func (s *invoiceService) HandleInboundTx(ctx context.Context, signHeader string, callback payments.InboundTxCallback, rawBody []byte) error {
	err := s.handleInboundTx(ctx, signHeader, callback, rawBody)
	// Unknown accounts and unlinked invoices are dropped silently so the
	// gateway does not retry forever on subjects we never issued.
	if err != nil && ierr.IsNotFound(err) {
		s.Logger.Infow("dropping inbound transaction for unknown subject",
			"transaction_id", callback.TransactionID,
			"address", callback.Address,
		)
		return nil
	}
	return err
}

func (s *invoiceService) handleInboundTx(ctx context.Context, signHeader string, callback payments.InboundTxCallback, rawBody []byte) error {
	if _, err := s.requirePayments(); err != nil {
		return err
	}
	// The signature covers the raw body bytes as received.
	if err := payments.VerifySign(rawBody, signHeader, s.Config.Payments.SignPublicKey); err != nil {
		return err
	}

	accountID, err := s.resolveAccountID(ctx, callback)
	if err != nil {
		return err
	}

	amount, err := types.NewAmountFromString(callback.AmountCaptured)
	if err != nil {
		return err
	}

	// The account must be linked to an invoice before we count anything.
	if _, err := s.InvoiceRepo.GetByAccountID(ctx, accountID); err != nil {
		return err
	}

	inv, err := s.InvoiceRepo.IncreaseAmountCaptured(ctx, accountID, callback.TransactionID, amount)
	if err != nil {
		if !ierr.IsAlreadyApplied(err) {
			return err
		}
		// Duplicate delivery: the amount is already counted, continue
		// with the stored row.
		inv, err = s.InvoiceRepo.GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}
	}

	if inv.IsPaid() {
		return nil
	}

	if err := s.refreshRates(ctx, inv); err != nil {
		return err
	}
	_, err = s.calculateAndSetFinalPriceIfPaid(ctx, inv.ID)
	return err
}

func (s *invoiceService) resolveAccountID(ctx context.Context, callback payments.InboundTxCallback) (uuid.UUID, error) {
	if callback.AccountID != nil {
		return *callback.AccountID, nil
	}
	acc, err := s.AccountRepo.GetByWalletAddress(ctx, callback.Address)
	if err != nil {
		return uuid.Nil, err
	}
	return acc.ID, nil
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, sagaID uuid.UUID) error {
	var canceledIntentID string

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		orders, err := s.OrderRepo.GetByInvoiceID(ctx, sagaID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if err := s.RateRepo.DeleteByOrderID(ctx, o.ID); err != nil {
				return err
			}
		}
		if err := s.OrderRepo.DeleteByInvoiceID(ctx, sagaID); err != nil {
			return err
		}

		link, err := s.PaymentIntentRepo.GetInvoiceLinkByInvoiceID(ctx, sagaID)
		switch {
		case err == nil:
			if err := s.PaymentIntentRepo.DeleteInvoiceLinks(ctx, sagaID); err != nil {
				return err
			}
			if err := s.PaymentIntentRepo.Delete(ctx, link.PaymentIntentID); err != nil {
				return err
			}
			canceledIntentID = link.PaymentIntentID
		case ierr.IsNotFound(err):
			// Crypto flow: no intent to clean up.
		default:
			return err
		}

		return s.InvoiceRepo.Delete(ctx, sagaID)
	})
	if err != nil {
		return err
	}

	// Best effort: the DB delete stands even if the gateway cancel fails.
	if canceledIntentID != "" {
		if err := s.StripeClient.CancelPaymentIntent(ctx, canceledIntentID); err != nil {
			s.Logger.Errorw("failed to cancel payment intent for deleted invoice",
				"invoice_id", sagaID,
				"payment_intent_id", canceledIntentID,
				"error", err,
			)
		}
	}

	s.Logger.Infow("invoice deleted", "invoice_id", sagaID)
	return nil
}
