package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/paymentintent"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
)

type paymentIntentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentIntentRepository(db *postgres.DB, logger *logger.Logger) paymentintent.Repository {
	return &paymentIntentRepository{db: db, logger: logger}
}

func (r *paymentIntentRepository) Create(ctx context.Context, intent *paymentintent.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (
			id, amount, amount_received, client_secret, currency,
			last_payment_error_message, receipt_email, charge_id, status,
			created_at, updated_at
		) VALUES (
			:id, :amount, :amount_received, :client_secret, :currency,
			:last_payment_error_message, :receipt_email, :charge_id, :status,
			:created_at, :updated_at
		)`

	r.logger.Debugw("storing payment intent", "payment_intent_id", intent.ID)

	if _, err := r.db.NamedExecContext(ctx, query, intent); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to store payment intent").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentIntentRepository) Get(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	rows, err := r.db.NamedQueryContext(ctx,
		"SELECT * FROM payment_intents WHERE id = :id",
		map[string]interface{}{"id": id},
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment intent").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("payment intent not found").
			WithHint("Payment intent not found").
			Mark(ierr.ErrNotFound)
	}

	var intent paymentintent.PaymentIntent
	if err := rows.StructScan(&intent); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan payment intent").
			Mark(ierr.ErrDatabase)
	}
	return &intent, nil
}

func (r *paymentIntentRepository) Update(ctx context.Context, id string, input paymentintent.UpdateInput) (*paymentintent.PaymentIntent, error) {
	query := `
		UPDATE payment_intents SET
			status = COALESCE(:status, status),
			amount_received = COALESCE(:amount_received, amount_received),
			charge_id = COALESCE(:charge_id, charge_id),
			last_payment_error_message = COALESCE(:last_payment_error_message, last_payment_error_message),
			updated_at = :updated_at
		WHERE id = :id
		RETURNING *`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"status":                     input.Status,
		"amount_received":            input.AmountReceived,
		"charge_id":                  input.ChargeID,
		"last_payment_error_message": input.LastPaymentErrorMessage,
		"updated_at":                 time.Now().UTC(),
		"id":                         id,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to update payment intent").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("payment intent not found").
			Mark(ierr.ErrNotFound)
	}

	var intent paymentintent.PaymentIntent
	if err := rows.StructScan(&intent); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan payment intent").
			Mark(ierr.ErrDatabase)
	}
	return &intent, nil
}

func (r *paymentIntentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx,
		"DELETE FROM payment_intents WHERE id = :id",
		map[string]interface{}{"id": id},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete payment intent").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentIntentRepository) LinkInvoice(ctx context.Context, invoiceID uuid.UUID, intentID string) error {
	query := `
		INSERT INTO payment_intents_invoices (invoice_id, payment_intent_id, created_at)
		VALUES (:invoice_id, :payment_intent_id, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"invoice_id":        invoiceID,
		"payment_intent_id": intentID,
		"created_at":        time.Now().UTC(),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to link payment intent to invoice").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentIntentRepository) GetInvoiceLink(ctx context.Context, intentID string) (*paymentintent.InvoiceLink, error) {
	return r.getLink(ctx,
		"SELECT * FROM payment_intents_invoices WHERE payment_intent_id = :payment_intent_id",
		map[string]interface{}{"payment_intent_id": intentID},
	)
}

func (r *paymentIntentRepository) GetInvoiceLinkByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*paymentintent.InvoiceLink, error) {
	return r.getLink(ctx,
		"SELECT * FROM payment_intents_invoices WHERE invoice_id = :invoice_id",
		map[string]interface{}{"invoice_id": invoiceID},
	)
}

func (r *paymentIntentRepository) getLink(ctx context.Context, query string, args map[string]interface{}) (*paymentintent.InvoiceLink, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment intent link").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("payment intent link not found").
			Mark(ierr.ErrNotFound)
	}

	var link paymentintent.InvoiceLink
	if err := rows.StructScan(&link); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan payment intent link").
			Mark(ierr.ErrDatabase)
	}
	return &link, nil
}

func (r *paymentIntentRepository) DeleteInvoiceLinks(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.db.NamedExecContext(ctx,
		"DELETE FROM payment_intents_invoices WHERE invoice_id = :invoice_id",
		map[string]interface{}{"invoice_id": invoiceID},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete payment intent links").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentIntentRepository) LinkFee(ctx context.Context, feeID int64, intentID string) error {
	query := `
		INSERT INTO payment_intents_fees (fee_id, payment_intent_id, created_at)
		VALUES (:fee_id, :payment_intent_id, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"fee_id":            feeID,
		"payment_intent_id": intentID,
		"created_at":        time.Now().UTC(),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to link payment intent to fee").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentIntentRepository) GetFeeLink(ctx context.Context, intentID string) (*paymentintent.FeeLink, error) {
	rows, err := r.db.NamedQueryContext(ctx,
		"SELECT * FROM payment_intents_fees WHERE payment_intent_id = :payment_intent_id",
		map[string]interface{}{"payment_intent_id": intentID},
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get fee link").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("fee link not found").
			Mark(ierr.ErrNotFound)
	}

	var link paymentintent.FeeLink
	if err := rows.StructScan(&link); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan fee link").
			Mark(ierr.ErrDatabase)
	}
	return &link, nil
}
