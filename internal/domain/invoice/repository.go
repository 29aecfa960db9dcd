package invoice

import (
	"context"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/types"
)

// Repository persists invoices. Lookups return ErrNotFound when no row
// matches.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Invoice, error)

	// IncreaseAmountCaptured records an inbound transaction and bumps the
	// captured amount of the invoice linked to the account, atomically.
	// Delivering the same (accountID, transactionID) twice fails with
	// ErrAlreadyApplied and leaves the ledger untouched.
	IncreaseAmountCaptured(ctx context.Context, accountID uuid.UUID, transactionID string, delta types.Amount) (*Invoice, error)

	// SetPaid freezes the final prices and stamps paid_at. At most one
	// caller wins; the rest get ErrAlreadyApplied and paid_at never
	// moves.
	SetPaid(ctx context.Context, id uuid.UUID, input SetPaidInput) (*Invoice, error)

	Delete(ctx context.Context, id uuid.UUID) error
}
