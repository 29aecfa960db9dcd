package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/invoice"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	mu           sync.RWMutex
	invoices     map[uuid.UUID]*invoice.Invoice
	transactions map[string]bool // accountID|transactionID
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		invoices:     make(map[uuid.UUID]*invoice.Invoice),
		transactions: make(map[string]bool),
	}
}

func (m *InMemoryInvoiceStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = make(map[uuid.UUID]*invoice.Invoice)
	m.transactions = make(map[string]bool)
}

func (m *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[inv.ID]; ok {
		return ierr.NewError("invoice already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *InMemoryInvoiceStore) Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(id)
}

func (m *InMemoryInvoiceStore) get(id uuid.UUID) (*invoice.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (m *InMemoryInvoiceStore) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getByAccountID(accountID)
}

func (m *InMemoryInvoiceStore) getByAccountID(accountID uuid.UUID) (*invoice.Invoice, error) {
	var latest *invoice.Invoice
	for _, inv := range m.invoices {
		if inv.AccountID == nil || *inv.AccountID != accountID {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	if latest == nil {
		return nil, ierr.NewError("invoice not found").
			WithHint("No invoice is linked to this account").
			Mark(ierr.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (m *InMemoryInvoiceStore) IncreaseAmountCaptured(ctx context.Context, accountID uuid.UUID, transactionID string, delta types.Amount) (*invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountID.String() + "|" + transactionID
	if m.transactions[key] {
		return nil, ierr.NewError("transaction already recorded").
			Mark(ierr.ErrAlreadyApplied)
	}

	inv, err := m.getByAccountID(accountID)
	if err != nil {
		return nil, err
	}

	m.transactions[key] = true
	stored := m.invoices[inv.ID]
	stored.AmountCaptured = stored.AmountCaptured.Add(delta)
	stored.UpdatedAt = time.Now().UTC()

	cp := *stored
	return &cp, nil
}

func (m *InMemoryInvoiceStore) SetPaid(ctx context.Context, id uuid.UUID, input invoice.SetPaidInput) (*invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.invoices[id]
	if !ok {
		return nil, ierr.NewError("invoice not found").
			Mark(ierr.ErrNotFound)
	}
	if stored.PaidAt != nil {
		return nil, ierr.NewError("invoice is already paid").
			Mark(ierr.ErrAlreadyApplied)
	}

	final := input.FinalAmountPaid
	cashback := input.FinalCashbackAmount
	paidAt := input.PaidAt
	stored.FinalAmountPaid = &final
	stored.FinalCashbackAmount = &cashback
	stored.PaidAt = &paidAt
	stored.UpdatedAt = time.Now().UTC()

	cp := *stored
	return &cp, nil
}

func (m *InMemoryInvoiceStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[id]; !ok {
		return ierr.NewError("invoice not found").
			Mark(ierr.ErrNotFound)
	}
	delete(m.invoices, id)
	return nil
}
