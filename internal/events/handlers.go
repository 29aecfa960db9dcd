package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/storiqa/billing/internal/clients/saga"
	"github.com/storiqa/billing/internal/domain/event"
	"github.com/storiqa/billing/internal/domain/fee"
	"github.com/storiqa/billing/internal/domain/invoice"
	"github.com/storiqa/billing/internal/domain/order"
	"github.com/storiqa/billing/internal/domain/paymentintent"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/service"
	"github.com/storiqa/billing/internal/types"
)

// Handler executes one journal event. Handlers are idempotent: an entry
// whose lease expired mid-flight will be delivered again.
type Handler struct {
	service.ServiceParams
}

func NewHandler(params service.ServiceParams) *Handler {
	return &Handler{ServiceParams: params}
}

func (h *Handler) Handle(ctx context.Context, ev event.Event) error {
	p := ev.Payload
	switch {
	case p.InvoicePaid != nil:
		return h.handleInvoicePaid(ctx, p.InvoicePaid)
	case p.PaymentIntentSucceeded != nil:
		return h.handlePaymentIntentSucceeded(ctx, &p.PaymentIntentSucceeded.PaymentIntent)
	case p.PaymentIntentAmountCapturableUpdated != nil:
		return h.handleAmountCapturableUpdated(ctx, &p.PaymentIntentAmountCapturableUpdated.PaymentIntent)
	case p.PaymentIntentPaymentFailed != nil:
		return h.handlePaymentFailed(ctx, &p.PaymentIntentPaymentFailed.PaymentIntent)
	case p.PaymentIntentCapture != nil:
		return h.handlePaymentIntentCapture(ctx, p.PaymentIntentCapture)
	case p.PaymentExpired != nil:
		return h.handlePaymentExpired(ctx, p.PaymentExpired)
	case p.PayoutInitiated != nil:
		h.Logger.Infow("payout initiated", "payout_id", p.PayoutInitiated.PayoutID)
		return nil
	default:
		return nil
	}
}

// handleInvoicePaid marks every order of the invoice captured and tells
// the saga the checkout is paid.
func (h *Handler) handleInvoicePaid(ctx context.Context, p *event.InvoicePaid) error {
	orders, err := h.OrderRepo.GetByInvoiceID(ctx, p.InvoiceID)
	if err != nil {
		return err
	}

	for _, o := range orders {
		if o.State != types.PaymentStateInitial {
			continue
		}
		if _, err := h.OrderRepo.UpdateState(ctx, o.ID, types.PaymentStateCaptured); err != nil {
			return err
		}
	}

	return h.SagaClient.SetOrdersPaid(ctx, saga.OrdersPaid{
		InvoiceID: p.InvoiceID,
		OrderIDs: lo.Map(orders, func(o *order.Order, _ int) uuid.UUID {
			return o.ID
		}),
	})
}

// handlePaymentIntentSucceeded settles whatever the intent was opened
// for: an invoice is marked paid and gets its fees recognized, a fee
// gets marked paid.
func (h *Handler) handlePaymentIntentSucceeded(ctx context.Context, intent *paymentintent.PaymentIntent) error {
	if err := h.storeIntent(ctx, intent); err != nil {
		return err
	}

	invoiceLink, err := h.PaymentIntentRepo.GetInvoiceLink(ctx, intent.ID)
	if err == nil {
		return h.settleInvoice(ctx, invoiceLink.InvoiceID)
	}
	if !ierr.IsNotFound(err) {
		return err
	}

	feeLink, err := h.PaymentIntentRepo.GetFeeLink(ctx, intent.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return ierr.NewError("payment intent is not linked to an invoice or a fee").
				WithReportableDetails(map[string]interface{}{
					"payment_intent_id": intent.ID,
				}).
				Mark(ierr.ErrSystem)
		}
		return err
	}

	status := types.FeeStatusPaid
	_, err = h.FeeRepo.Update(ctx, feeLink.FeeID, fee.UpdateFee{
		Status:   &status,
		ChargeID: intent.ChargeID,
	})
	return err
}

// settleInvoice finishes a card capture in one transaction: it freezes
// the invoice's final price and creates a not-paid commission fee for
// each order. Reruns skip the paid transition and orders that already
// have a fee.
func (h *Handler) settleInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	return h.DB.WithTx(ctx, func(ctx context.Context) error {
		inv, err := h.InvoiceRepo.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		orders, err := h.OrderRepo.GetByInvoiceID(ctx, invoiceID)
		if err != nil {
			return err
		}

		if !inv.IsPaid() {
			if err := h.markInvoicePaid(ctx, inv, orders); err != nil {
				return err
			}
		}

		for _, o := range orders {
			_, err := h.FeeRepo.GetByOrderID(ctx, o.ID)
			if err == nil {
				continue
			}
			if !ierr.IsNotFound(err) {
				return err
			}

			input, err := h.orderFee(o)
			if err != nil {
				return err
			}
			if _, err := h.FeeRepo.Create(ctx, *input); err != nil {
				return err
			}
			h.Logger.Infow("recognized fee",
				"order_id", o.ID,
				"amount", input.Amount.String(),
				"currency", input.Currency,
			)
		}
		return nil
	})
}

// markInvoicePaid freezes the final price off the card capture and
// enqueues InvoicePaid. The gateway only reports success after the full
// amount settled, so the stored total is the final one. Only the
// SetPaid winner enqueues; a loser backs off silently.
func (h *Handler) markInvoicePaid(ctx context.Context, inv *invoice.Invoice, orders []*order.Order) error {
	withRates := make([]invoice.OrderWithRates, 0, len(orders))
	for _, o := range orders {
		rates, err := h.RateRepo.GetAllRates(ctx, o.ID)
		if err != nil {
			return err
		}
		withRates = append(withRates, invoice.OrderWithRates{Order: o, Rates: rates})
	}
	dump := invoice.CalculateInvoicePrice(inv, withRates, nil)
	if dump.HasMissingRates {
		return ierr.NewError("captured invoice cannot be priced").
			WithHint("An order has no rate and a foreign seller currency").
			WithReportableDetails(map[string]interface{}{
				"invoice_id": inv.ID,
			}).
			Mark(ierr.ErrSystem)
	}

	_, err := h.InvoiceRepo.SetPaid(ctx, inv.ID, invoice.SetPaidInput{
		FinalAmountPaid:     types.AmountFromSuperUnit(inv.BuyerCurrency, dump.TotalPrice),
		FinalCashbackAmount: types.AmountFromSuperUnit(types.CurrencySTQ, dump.TotalCashback),
		PaidAt:              time.Now().UTC(),
	})
	if ierr.IsAlreadyApplied(err) {
		return nil
	}
	if err != nil {
		return err
	}

	h.Logger.Infow("invoice paid",
		"invoice_id", inv.ID,
		"final_amount_paid", dump.TotalPrice.String(),
	)
	return h.EventRepo.AddEvent(ctx, event.NewEvent(event.Payload{
		InvoicePaid: &event.InvoicePaid{InvoiceID: inv.ID},
	}))
}

// orderFee computes the marketplace commission for one order. The split
// divides first and multiplies after, truncating like the ledger always
// has; changing the order of operations would shift existing reports.
func (h *Handler) orderFee(o *order.Order) (*fee.NewFee, error) {
	onePercent, err := o.TotalAmount.MulDiv(1, 100)
	if err != nil {
		return nil, err
	}
	amount, err := onePercent.MulDiv(h.Config.Fee.OrderPercent, 1)
	if err != nil {
		return nil, err
	}

	input := &fee.NewFee{
		OrderID:  o.ID,
		Amount:   amount,
		Currency: o.SellerCurrency,
		Status:   types.FeeStatusNotPaid,
	}
	if !o.SellerCurrency.IsCrypto() {
		return input, nil
	}

	// Crypto orders are billed in the configured fiat fee currency; the
	// original denomination is kept on the row for reconciliation.
	rate, ok := h.Config.Fee.CryptoRates[o.SellerCurrency.String()]
	if !ok {
		return nil, ierr.NewError("no fee conversion rate for currency").
			WithHintf("Configure fee.crypto_rates for %s", o.SellerCurrency).
			Mark(ierr.ErrSystem)
	}

	cryptoCurrency := o.SellerCurrency
	cryptoAmount := amount
	fiat := amount.ToSuperUnit(cryptoCurrency).Mul(decimal.NewFromFloat(rate))

	input.Amount = types.AmountFromSuperUnit(h.Config.Fee.FeeCurrency, fiat)
	input.Currency = h.Config.Fee.FeeCurrency
	input.CryptoCurrency = &cryptoCurrency
	input.CryptoAmount = &cryptoAmount
	return input, nil
}

// handleAmountCapturableUpdated records the intent and replays it as a
// success; the card gateway sends this shape when the capture method is
// automatic.
func (h *Handler) handleAmountCapturableUpdated(ctx context.Context, intent *paymentintent.PaymentIntent) error {
	if err := h.storeIntent(ctx, intent); err != nil {
		return err
	}
	return h.EventRepo.AddEvent(ctx, event.NewEvent(event.Payload{
		PaymentIntentSucceeded: &event.PaymentIntentSucceeded{PaymentIntent: *intent},
	}))
}

func (h *Handler) handlePaymentFailed(ctx context.Context, intent *paymentintent.PaymentIntent) error {
	if err := h.storeIntent(ctx, intent); err != nil {
		return err
	}
	h.Logger.Warnw("payment intent failed",
		"payment_intent_id", intent.ID,
		"status", intent.Status,
		"last_error", intent.LastPaymentErrorMessage,
	)
	return nil
}

// handlePaymentIntentCapture captures the intent backing the order's
// invoice on the card gateway.
func (h *Handler) handlePaymentIntentCapture(ctx context.Context, p *event.PaymentIntentCapture) error {
	o, err := h.OrderRepo.Get(ctx, p.OrderID)
	if err != nil {
		return err
	}
	link, err := h.PaymentIntentRepo.GetInvoiceLinkByInvoiceID(ctx, o.InvoiceID)
	if err != nil {
		return err
	}

	captured, err := h.StripeClient.CapturePaymentIntent(ctx, link.PaymentIntentID)
	if err != nil {
		return err
	}
	return h.storeIntent(ctx, captured)
}

// handlePaymentExpired voids an invoice whose payment window ran out.
// Paid or deleted invoices are left alone; the event fires regardless.
func (h *Handler) handlePaymentExpired(ctx context.Context, p *event.PaymentExpired) error {
	inv, err := h.InvoiceRepo.Get(ctx, p.InvoiceID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if inv.IsPaid() {
		return nil
	}

	orders, err := h.OrderRepo.GetByInvoiceID(ctx, inv.ID)
	if err != nil {
		return err
	}

	updates := make([]saga.OrderStateUpdate, 0, len(orders))
	for _, o := range orders {
		if o.State != types.PaymentStateInitial {
			continue
		}
		if _, err := h.OrderRepo.UpdateState(ctx, o.ID, types.PaymentStateExpired); err != nil {
			return err
		}
		updates = append(updates, saga.OrderStateUpdate{
			OrderID: o.ID,
			State:   types.PaymentStateExpired,
		})
	}

	if err := h.SagaClient.UpdateOrdersState(ctx, updates); err != nil {
		return err
	}

	link, err := h.PaymentIntentRepo.GetInvoiceLinkByInvoiceID(ctx, inv.ID)
	switch {
	case err == nil:
		if err := h.StripeClient.CancelPaymentIntent(ctx, link.PaymentIntentID); err != nil {
			return err
		}
	case ierr.IsNotFound(err):
		// Crypto invoice, nothing to cancel.
	default:
		return err
	}

	h.Logger.Infow("invoice expired", "invoice_id", inv.ID, "orders", len(updates))
	return nil
}

// storeIntent upserts the gateway's current view of an intent.
func (h *Handler) storeIntent(ctx context.Context, intent *paymentintent.PaymentIntent) error {
	_, err := h.PaymentIntentRepo.Update(ctx, intent.ID, paymentintent.UpdateInput{
		Status:                  &intent.Status,
		AmountReceived:          &intent.AmountReceived,
		ChargeID:                intent.ChargeID,
		LastPaymentErrorMessage: intent.LastPaymentErrorMessage,
	})
	if err == nil {
		return nil
	}
	if !ierr.IsNotFound(err) {
		return err
	}
	// An intent opened for a fee charge may reach us before it is stored.
	return h.PaymentIntentRepo.Create(ctx, intent)
}
