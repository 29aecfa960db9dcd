package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/order"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
	"github.com/storiqa/billing/internal/types"
)

type orderRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewOrderRepository(db *postgres.DB, logger *logger.Logger) order.Repository {
	return &orderRepository{db: db, logger: logger}
}

func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	query := `
		INSERT INTO orders (
			id, invoice_id, store_id, seller_currency, total_amount,
			cashback_amount, state, stripe_fee, created_at, updated_at
		) VALUES (
			:id, :invoice_id, :store_id, :seller_currency, :total_amount,
			:cashback_amount, :state, :stripe_fee, :created_at, :updated_at
		)`

	r.logger.Debugw("creating order", "order_id", o.ID, "invoice_id", o.InvoiceID)

	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create order").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM orders WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get order").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("order not found").
			WithHint("Order not found").
			Mark(ierr.ErrNotFound)
	}

	var o order.Order
	if err := rows.StructScan(&o); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan order").
			Mark(ierr.ErrDatabase)
	}
	return &o, nil
}

func (r *orderRepository) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]*order.Order, error) {
	rows, err := r.db.NamedQueryContext(ctx,
		"SELECT * FROM orders WHERE invoice_id = :invoice_id ORDER BY created_at ASC",
		map[string]interface{}{"invoice_id": invoiceID},
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list orders").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.StructScan(&o); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan order").
				Mark(ierr.ErrDatabase)
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

func (r *orderRepository) UpdateState(ctx context.Context, id uuid.UUID, state types.PaymentState) (*order.Order, error) {
	query := `
		UPDATE orders SET state = :state, updated_at = :updated_at
		WHERE id = :id
		RETURNING *`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"state":      state,
		"updated_at": time.Now().UTC(),
		"id":         id,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to update order state").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("order not found").
			Mark(ierr.ErrNotFound)
	}

	var o order.Order
	if err := rows.StructScan(&o); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan order").
			Mark(ierr.ErrDatabase)
	}
	return &o, nil
}

func (r *orderRepository) SetStripeFee(ctx context.Context, id uuid.UUID, fee types.Amount) error {
	res, err := r.db.NamedExecContext(ctx,
		"UPDATE orders SET stripe_fee = :stripe_fee, updated_at = :updated_at WHERE id = :id",
		map[string]interface{}{
			"stripe_fee": fee,
			"updated_at": time.Now().UTC(),
			"id":         id,
		},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to set order stripe fee").
			Mark(ierr.ErrDatabase)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("order not found").
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *orderRepository) DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := r.db.NamedExecContext(ctx,
		"DELETE FROM orders WHERE invoice_id = :invoice_id",
		map[string]interface{}{"invoice_id": invoiceID},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete orders").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
