package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/fee"
	ierr "github.com/storiqa/billing/internal/errors"
)

// InMemoryFeeStore implements fee.Repository
type InMemoryFeeStore struct {
	mu     sync.RWMutex
	fees   map[int64]*fee.Fee
	nextID int64
}

func NewInMemoryFeeStore() *InMemoryFeeStore {
	return &InMemoryFeeStore{fees: make(map[int64]*fee.Fee)}
}

func (m *InMemoryFeeStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fees = make(map[int64]*fee.Fee)
	m.nextID = 0
}

func (m *InMemoryFeeStore) Create(ctx context.Context, input fee.NewFee) (*fee.Fee, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := time.Now().UTC()
	f := &fee.Fee{
		ID:             m.nextID,
		OrderID:        input.OrderID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Status:         input.Status,
		ChargeID:       input.ChargeID,
		Metadata:       input.Metadata,
		CryptoCurrency: input.CryptoCurrency,
		CryptoAmount:   input.CryptoAmount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.fees[f.ID] = f

	cp := *f
	return &cp, nil
}

func (m *InMemoryFeeStore) Get(ctx context.Context, id int64) (*fee.Fee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.fees[id]
	if !ok {
		return nil, ierr.NewError("fee not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (m *InMemoryFeeStore) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*fee.Fee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *fee.Fee
	for _, f := range m.fees {
		if f.OrderID != orderID {
			continue
		}
		if latest == nil || f.CreatedAt.After(latest.CreatedAt) || (f.CreatedAt.Equal(latest.CreatedAt) && f.ID > latest.ID) {
			latest = f
		}
	}
	if latest == nil {
		return nil, ierr.NewError("fee not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (m *InMemoryFeeStore) Update(ctx context.Context, id int64, input fee.UpdateFee) (*fee.Fee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.fees[id]
	if !ok {
		return nil, ierr.NewError("fee not found").
			Mark(ierr.ErrNotFound)
	}
	if input.Status != nil {
		f.Status = *input.Status
	}
	if input.ChargeID != nil {
		f.ChargeID = input.ChargeID
	}
	if input.Metadata != nil {
		f.Metadata = input.Metadata
	}
	f.UpdatedAt = time.Now().UTC()

	cp := *f
	return &cp, nil
}
