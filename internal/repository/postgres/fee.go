package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/fee"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
)

type feeRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewFeeRepository(db *postgres.DB, logger *logger.Logger) fee.Repository {
	return &feeRepository{db: db, logger: logger}
}

func (r *feeRepository) Create(ctx context.Context, input fee.NewFee) (*fee.Fee, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO fees (
			order_id, amount, currency, status, charge_id, metadata,
			crypto_currency, crypto_amount, created_at, updated_at
		) VALUES (
			:order_id, :amount, :currency, :status, :charge_id, :metadata,
			:crypto_currency, :crypto_amount, :created_at, :updated_at
		)
		RETURNING *`

	now := time.Now().UTC()
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"order_id":        input.OrderID,
		"amount":          input.Amount,
		"currency":        input.Currency,
		"status":          input.Status,
		"charge_id":       input.ChargeID,
		"metadata":        input.Metadata,
		"crypto_currency": input.CryptoCurrency,
		"crypto_amount":   input.CryptoAmount,
		"created_at":      now,
		"updated_at":      now,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create fee").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("fee insert returned no row").
			Mark(ierr.ErrDatabase)
	}

	var f fee.Fee
	if err := rows.StructScan(&f); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan fee").
			Mark(ierr.ErrDatabase)
	}

	r.logger.Infow("fee recognized",
		"fee_id", f.ID,
		"order_id", f.OrderID,
		"amount", f.Amount.String(),
		"currency", f.Currency,
	)
	return &f, nil
}

func (r *feeRepository) Get(ctx context.Context, id int64) (*fee.Fee, error) {
	return r.getBy(ctx, "SELECT * FROM fees WHERE id = :id", map[string]interface{}{"id": id})
}

func (r *feeRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*fee.Fee, error) {
	return r.getBy(ctx,
		"SELECT * FROM fees WHERE order_id = :order_id ORDER BY created_at DESC LIMIT 1",
		map[string]interface{}{"order_id": orderID},
	)
}

func (r *feeRepository) getBy(ctx context.Context, query string, args map[string]interface{}) (*fee.Fee, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get fee").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("fee not found").
			WithHint("Fee not found").
			Mark(ierr.ErrNotFound)
	}

	var f fee.Fee
	if err := rows.StructScan(&f); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan fee").
			Mark(ierr.ErrDatabase)
	}
	return &f, nil
}

func (r *feeRepository) Update(ctx context.Context, id int64, input fee.UpdateFee) (*fee.Fee, error) {
	query := `
		UPDATE fees SET
			status = COALESCE(:status, status),
			charge_id = COALESCE(:charge_id, charge_id),
			metadata = COALESCE(:metadata, metadata),
			updated_at = :updated_at
		WHERE id = :id
		RETURNING *`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"status":     input.Status,
		"charge_id":  input.ChargeID,
		"metadata":   input.Metadata,
		"updated_at": time.Now().UTC(),
		"id":         id,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to update fee").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("fee not found").
			Mark(ierr.ErrNotFound)
	}

	var f fee.Fee
	if err := rows.StructScan(&f); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan fee").
			Mark(ierr.ErrDatabase)
	}
	return &f, nil
}
