package paymentintent

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists card gateway intents and their links to invoices
// and fees. Get methods return ErrNotFound when no row matches.
type Repository interface {
	Create(ctx context.Context, intent *PaymentIntent) error
	Get(ctx context.Context, id string) (*PaymentIntent, error)
	Update(ctx context.Context, id string, input UpdateInput) (*PaymentIntent, error)
	Delete(ctx context.Context, id string) error

	LinkInvoice(ctx context.Context, invoiceID uuid.UUID, intentID string) error
	GetInvoiceLink(ctx context.Context, intentID string) (*InvoiceLink, error)
	GetInvoiceLinkByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*InvoiceLink, error)
	DeleteInvoiceLinks(ctx context.Context, invoiceID uuid.UUID) error

	LinkFee(ctx context.Context, feeID int64, intentID string) error
	GetFeeLink(ctx context.Context, intentID string) (*FeeLink, error)
}
