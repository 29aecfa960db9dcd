package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/order"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// InMemoryOrderStore implements order.Repository
type InMemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*order.Order
}

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{orders: make(map[uuid.UUID]*order.Order)}
}

func (m *InMemoryOrderStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = make(map[uuid.UUID]*order.Order)
}

func (m *InMemoryOrderStore) Create(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.ID]; ok {
		return ierr.NewError("order already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *InMemoryOrderStore) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ierr.NewError("order not found").
			WithHint("Order not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *InMemoryOrderStore) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*order.Order, 0)
	for _, o := range m.orders {
		if o.InvoiceID == invoiceID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *InMemoryOrderStore) UpdateState(ctx context.Context, id uuid.UUID, state types.PaymentState) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ierr.NewError("order not found").
			Mark(ierr.ErrNotFound)
	}
	o.State = state
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	return &cp, nil
}

func (m *InMemoryOrderStore) SetStripeFee(ctx context.Context, id uuid.UUID, fee types.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ierr.NewError("order not found").
			Mark(ierr.ErrNotFound)
	}
	o.StripeFee = &fee
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *InMemoryOrderStore) DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, o := range m.orders {
		if o.InvoiceID == invoiceID {
			delete(m.orders, id)
		}
	}
	return nil
}
