package account

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the local cache of gateway-issued accounts.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByWalletAddress(ctx context.Context, addr string) (*Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
