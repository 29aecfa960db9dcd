package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/paymentintent"
	ierr "github.com/storiqa/billing/internal/errors"
)

// InMemoryPaymentIntentStore implements paymentintent.Repository
type InMemoryPaymentIntentStore struct {
	mu           sync.RWMutex
	intents      map[string]*paymentintent.PaymentIntent
	invoiceLinks map[string]*paymentintent.InvoiceLink // by intent id
	feeLinks     map[string]*paymentintent.FeeLink     // by intent id
	nextLinkID   int64
}

func NewInMemoryPaymentIntentStore() *InMemoryPaymentIntentStore {
	return &InMemoryPaymentIntentStore{
		intents:      make(map[string]*paymentintent.PaymentIntent),
		invoiceLinks: make(map[string]*paymentintent.InvoiceLink),
		feeLinks:     make(map[string]*paymentintent.FeeLink),
	}
}

func (m *InMemoryPaymentIntentStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = make(map[string]*paymentintent.PaymentIntent)
	m.invoiceLinks = make(map[string]*paymentintent.InvoiceLink)
	m.feeLinks = make(map[string]*paymentintent.FeeLink)
	m.nextLinkID = 0
}

func (m *InMemoryPaymentIntentStore) Create(ctx context.Context, intent *paymentintent.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.intents[intent.ID]; ok {
		return ierr.NewError("payment intent already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *intent
	m.intents[intent.ID] = &cp
	return nil
}

func (m *InMemoryPaymentIntentStore) Get(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intent, ok := m.intents[id]
	if !ok {
		return nil, ierr.NewError("payment intent not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *intent
	return &cp, nil
}

func (m *InMemoryPaymentIntentStore) Update(ctx context.Context, id string, input paymentintent.UpdateInput) (*paymentintent.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[id]
	if !ok {
		return nil, ierr.NewError("payment intent not found").
			Mark(ierr.ErrNotFound)
	}
	if input.Status != nil {
		intent.Status = *input.Status
	}
	if input.AmountReceived != nil {
		intent.AmountReceived = *input.AmountReceived
	}
	if input.ChargeID != nil {
		intent.ChargeID = input.ChargeID
	}
	if input.LastPaymentErrorMessage != nil {
		intent.LastPaymentErrorMessage = input.LastPaymentErrorMessage
	}
	intent.UpdatedAt = time.Now().UTC()

	cp := *intent
	return &cp, nil
}

func (m *InMemoryPaymentIntentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.intents[id]; !ok {
		return ierr.NewError("payment intent not found").
			Mark(ierr.ErrNotFound)
	}
	delete(m.intents, id)
	return nil
}

func (m *InMemoryPaymentIntentStore) LinkInvoice(ctx context.Context, invoiceID uuid.UUID, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLinkID++
	m.invoiceLinks[intentID] = &paymentintent.InvoiceLink{
		ID:              m.nextLinkID,
		InvoiceID:       invoiceID,
		PaymentIntentID: intentID,
		CreatedAt:       time.Now().UTC(),
	}
	return nil
}

func (m *InMemoryPaymentIntentStore) GetInvoiceLink(ctx context.Context, intentID string) (*paymentintent.InvoiceLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.invoiceLinks[intentID]
	if !ok {
		return nil, ierr.NewError("invoice link not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *link
	return &cp, nil
}

func (m *InMemoryPaymentIntentStore) GetInvoiceLinkByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*paymentintent.InvoiceLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, link := range m.invoiceLinks {
		if link.InvoiceID == invoiceID {
			cp := *link
			return &cp, nil
		}
	}
	return nil, ierr.NewError("invoice link not found").
		Mark(ierr.ErrNotFound)
}

func (m *InMemoryPaymentIntentStore) DeleteInvoiceLinks(ctx context.Context, invoiceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for intentID, link := range m.invoiceLinks {
		if link.InvoiceID == invoiceID {
			delete(m.invoiceLinks, intentID)
		}
	}
	return nil
}

func (m *InMemoryPaymentIntentStore) LinkFee(ctx context.Context, feeID int64, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLinkID++
	m.feeLinks[intentID] = &paymentintent.FeeLink{
		ID:              m.nextLinkID,
		FeeID:           feeID,
		PaymentIntentID: intentID,
		CreatedAt:       time.Now().UTC(),
	}
	return nil
}

func (m *InMemoryPaymentIntentStore) GetFeeLink(ctx context.Context, intentID string) (*paymentintent.FeeLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.feeLinks[intentID]
	if !ok {
		return nil, ierr.NewError("fee link not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *link
	return &cp, nil
}
