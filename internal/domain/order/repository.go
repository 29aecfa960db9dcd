package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/types"
)

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]*Order, error)
	UpdateState(ctx context.Context, id uuid.UUID, state types.PaymentState) (*Order, error)
	SetStripeFee(ctx context.Context, id uuid.UUID, fee types.Amount) error
	DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) error
}
