package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/rate"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// InMemoryRateStore implements rate.Repository
type InMemoryRateStore struct {
	mu     sync.RWMutex
	rates  []*rate.OrderExchangeRate
	nextID int64
	clock  time.Time
}

func NewInMemoryRateStore() *InMemoryRateStore {
	return &InMemoryRateStore{clock: time.Now().UTC()}
}

func (m *InMemoryRateStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = nil
	m.nextID = 0
}

// tick keeps CreatedAt strictly increasing so newest-first ordering is
// deterministic in tests.
func (m *InMemoryRateStore) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *InMemoryRateStore) AddActiveRate(ctx context.Context, input rate.NewRate) (*rate.OrderExchangeRate, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rates {
		if r.OrderID == input.OrderID && r.Status == types.RateStatusActive {
			r.Status = types.RateStatusExpired
			r.UpdatedAt = m.tick()
		}
	}

	m.nextID++
	now := m.tick()
	created := &rate.OrderExchangeRate{
		ID:         m.nextID,
		OrderID:    input.OrderID,
		ExchangeID: input.ExchangeID,
		Rate:       input.Rate,
		Status:     types.RateStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.rates = append(m.rates, created)

	cp := *created
	return &cp, nil
}

func (m *InMemoryRateStore) GetActiveRate(ctx context.Context, orderID uuid.UUID) (*rate.OrderExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rates {
		if r.OrderID == orderID && r.Status == types.RateStatusActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ierr.NewError("active rate not found").
		Mark(ierr.ErrNotFound)
}

func (m *InMemoryRateStore) GetAllRates(ctx context.Context, orderID uuid.UUID) ([]*rate.OrderExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*rate.OrderExchangeRate, 0)
	for _, r := range m.rates {
		if r.OrderID == orderID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *InMemoryRateStore) DeleteByOrderID(ctx context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rates[:0]
	for _, r := range m.rates {
		if r.OrderID != orderID {
			kept = append(kept, r)
		}
	}
	m.rates = kept
	return nil
}
