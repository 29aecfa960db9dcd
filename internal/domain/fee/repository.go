package fee

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists marketplace fees.
type Repository interface {
	Create(ctx context.Context, input NewFee) (*Fee, error)
	Get(ctx context.Context, id int64) (*Fee, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Fee, error)
	Update(ctx context.Context, id int64, input UpdateFee) (*Fee, error)
}
