package rate

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists order exchange rates.
type Repository interface {
	// AddActiveRate inserts a new Active rate for the order, atomically
	// expiring the previous Active one. At most one Active rate per order
	// holds at every point in time.
	AddActiveRate(ctx context.Context, input NewRate) (*OrderExchangeRate, error)

	// GetActiveRate returns the current Active rate, or ErrNotFound.
	GetActiveRate(ctx context.Context, orderID uuid.UUID) (*OrderExchangeRate, error)

	// GetAllRates returns every rate ever reserved for the order, newest
	// first.
	GetAllRates(ctx context.Context, orderID uuid.UUID) ([]*OrderExchangeRate, error)

	DeleteByOrderID(ctx context.Context, orderID uuid.UUID) error
}
