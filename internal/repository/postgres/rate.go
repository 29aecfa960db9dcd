package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/rate"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
	"github.com/storiqa/billing/internal/types"
)

type rateRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewRateRepository(db *postgres.DB, logger *logger.Logger) rate.Repository {
	return &rateRepository{db: db, logger: logger}
}

// AddActiveRate expires the current Active rate and inserts the new one
// in a single transaction, preserving the one-Active-per-order invariant
// under concurrent recalcs.
func (r *rateRepository) AddActiveRate(ctx context.Context, input rate.NewRate) (*rate.OrderExchangeRate, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var created *rate.OrderExchangeRate

	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		expire := `
			UPDATE order_exchange_rates
			SET status = :expired, updated_at = :updated_at
			WHERE order_id = :order_id AND status = :active`

		_, err := r.db.NamedExecContext(ctx, expire, map[string]interface{}{
			"expired":    types.RateStatusExpired,
			"active":     types.RateStatusActive,
			"updated_at": time.Now().UTC(),
			"order_id":   input.OrderID,
		})
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to expire previous rate").
				Mark(ierr.ErrDatabase)
		}

		insert := `
			INSERT INTO order_exchange_rates (order_id, exchange_id, rate, status, created_at, updated_at)
			VALUES (:order_id, :exchange_id, :rate, :status, :created_at, :updated_at)
			RETURNING *`

		now := time.Now().UTC()
		rows, err := r.db.NamedQueryContext(ctx, insert, map[string]interface{}{
			"order_id":    input.OrderID,
			"exchange_id": input.ExchangeID,
			"rate":        input.Rate,
			"status":      types.RateStatusActive,
			"created_at":  now,
			"updated_at":  now,
		})
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to insert exchange rate").
				Mark(ierr.ErrDatabase)
		}
		defer rows.Close()

		if !rows.Next() {
			return ierr.NewError("rate insert returned no row").
				Mark(ierr.ErrDatabase)
		}

		var row rate.OrderExchangeRate
		if err := rows.StructScan(&row); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to scan exchange rate").
				Mark(ierr.ErrDatabase)
		}
		created = &row
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debugw("reserved new active rate",
		"order_id", input.OrderID,
		"rate", input.Rate.String(),
	)
	return created, nil
}

func (r *rateRepository) GetActiveRate(ctx context.Context, orderID uuid.UUID) (*rate.OrderExchangeRate, error) {
	rows, err := r.db.NamedQueryContext(ctx,
		"SELECT * FROM order_exchange_rates WHERE order_id = :order_id AND status = :active",
		map[string]interface{}{"order_id": orderID, "active": types.RateStatusActive},
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get active rate").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("active rate not found").
			Mark(ierr.ErrNotFound)
	}

	var row rate.OrderExchangeRate
	if err := rows.StructScan(&row); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan exchange rate").
			Mark(ierr.ErrDatabase)
	}
	return &row, nil
}

func (r *rateRepository) GetAllRates(ctx context.Context, orderID uuid.UUID) ([]*rate.OrderExchangeRate, error) {
	rows, err := r.db.NamedQueryContext(ctx,
		"SELECT * FROM order_exchange_rates WHERE order_id = :order_id ORDER BY created_at DESC",
		map[string]interface{}{"order_id": orderID},
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list rates").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var rates []*rate.OrderExchangeRate
	for rows.Next() {
		var row rate.OrderExchangeRate
		if err := rows.StructScan(&row); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan exchange rate").
				Mark(ierr.ErrDatabase)
		}
		rates = append(rates, &row)
	}
	return rates, nil
}

func (r *rateRepository) DeleteByOrderID(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.db.NamedExecContext(ctx,
		"DELETE FROM order_exchange_rates WHERE order_id = :order_id",
		map[string]interface{}{"order_id": orderID},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete rates").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
