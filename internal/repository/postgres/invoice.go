package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/storiqa/billing/internal/domain/invoice"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
	"github.com/storiqa/billing/internal/types"
)

const pgUniqueViolation = "23505"

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, buyer_user_id, buyer_currency, amount_captured, account_id,
			final_amount_paid, final_cashback_amount, paid_at, created_at, updated_at
		) VALUES (
			:id, :buyer_user_id, :buyer_currency, :amount_captured, :account_id,
			:final_amount_paid, :final_cashback_amount, :paid_at, :created_at, :updated_at
		)`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"buyer_currency", inv.BuyerCurrency,
	)

	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create invoice").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return r.getBy(ctx, "SELECT * FROM invoices WHERE id = :id", map[string]interface{}{"id": id})
}

func (r *invoiceRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*invoice.Invoice, error) {
	return r.getBy(ctx,
		"SELECT * FROM invoices WHERE account_id = :account_id ORDER BY created_at DESC LIMIT 1",
		map[string]interface{}{"account_id": accountID},
	)
}

func (r *invoiceRepository) getBy(ctx context.Context, query string, args map[string]interface{}) (*invoice.Invoice, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get invoice").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			Mark(ierr.ErrNotFound)
	}

	var inv invoice.Invoice
	if err := rows.StructScan(&inv); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan invoice").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

// IncreaseAmountCaptured journals the inbound transaction and bumps the
// captured amount on the invoice linked to the account, all in one
// transaction. The unique (account_id, transaction_id) index makes
// duplicate deliveries fail with ErrAlreadyApplied before any ledger
// change.
func (r *invoiceRepository) IncreaseAmountCaptured(
	ctx context.Context,
	accountID uuid.UUID,
	transactionID string,
	delta types.Amount,
) (*invoice.Invoice, error) {
	var updated *invoice.Invoice

	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		insert := `
			INSERT INTO invoice_transactions (account_id, transaction_id, amount, created_at)
			VALUES (:account_id, :transaction_id, :amount, :created_at)`

		_, err := r.db.NamedExecContext(ctx, insert, map[string]interface{}{
			"account_id":     accountID,
			"transaction_id": transactionID,
			"amount":         delta,
			"created_at":     time.Now().UTC(),
		})
		if err != nil {
			if pqErr, ok := asPqError(err); ok && pqErr.Code == pgUniqueViolation {
				return ierr.WithError(err).
					WithHint("Transaction has already been applied").
					WithReportableDetails(map[string]interface{}{
						"account_id":     accountID,
						"transaction_id": transactionID,
					}).
					Mark(ierr.ErrAlreadyApplied)
			}
			return ierr.WithError(err).
				WithHint("Failed to record inbound transaction").
				Mark(ierr.ErrDatabase)
		}

		// Lock the invoice row so concurrent captures serialize.
		lock := `
			SELECT * FROM invoices
			WHERE account_id = :account_id
			ORDER BY created_at DESC LIMIT 1
			FOR UPDATE`

		inv, err := r.getBy(ctx, lock, map[string]interface{}{"account_id": accountID})
		if err != nil {
			return err
		}

		update := `
			UPDATE invoices
			SET amount_captured = amount_captured + :delta, updated_at = :updated_at
			WHERE id = :id
			RETURNING *`

		rows, err := r.db.NamedQueryContext(ctx, update, map[string]interface{}{
			"delta":      delta,
			"updated_at": time.Now().UTC(),
			"id":         inv.ID,
		})
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to increase captured amount").
				Mark(ierr.ErrDatabase)
		}
		defer rows.Close()

		if !rows.Next() {
			return ierr.NewError("invoice not found").
				Mark(ierr.ErrNotFound)
		}

		var row invoice.Invoice
		if err := rows.StructScan(&row); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to scan invoice").
				Mark(ierr.ErrDatabase)
		}
		updated = &row
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Infow("increased captured amount",
		"invoice_id", updated.ID,
		"account_id", accountID,
		"transaction_id", transactionID,
		"delta", delta.String(),
	)
	return updated, nil
}

// SetPaid freezes the final prices. The WHERE paid_at IS NULL guard keeps
// paid_at monotone; a caller that loses the race gets ErrAlreadyApplied so
// only the winner emits the paid event.
func (r *invoiceRepository) SetPaid(ctx context.Context, id uuid.UUID, input invoice.SetPaidInput) (*invoice.Invoice, error) {
	query := `
		UPDATE invoices
		SET final_amount_paid = :final_amount_paid,
			final_cashback_amount = :final_cashback_amount,
			paid_at = :paid_at,
			updated_at = :updated_at
		WHERE id = :id AND paid_at IS NULL
		RETURNING *`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"final_amount_paid":     input.FinalAmountPaid,
		"final_cashback_amount": input.FinalCashbackAmount,
		"paid_at":               input.PaidAt,
		"updated_at":            time.Now().UTC(),
		"id":                    id,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to mark invoice paid").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if rows.Next() {
		var inv invoice.Invoice
		if err := rows.StructScan(&inv); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan invoice").
				Mark(ierr.ErrDatabase)
		}
		r.logger.Infow("invoice marked paid", "invoice_id", id)
		return &inv, nil
	}
	rows.Close()

	// No row matched: either the invoice is gone (Get reports NotFound)
	// or another transition already set paid_at.
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ierr.NewError("invoice is already paid").
		WithHint("Invoice was marked paid by a concurrent transition").
		WithReportableDetails(map[string]interface{}{
			"invoice_id": id,
		}).
		Mark(ierr.ErrAlreadyApplied)
}

func (r *invoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NamedExecContext(ctx, "DELETE FROM invoices WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete invoice").
			Mark(ierr.ErrDatabase)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("invoice not found").
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func asPqError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if ierr.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}
