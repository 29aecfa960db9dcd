package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/account"
	ierr "github.com/storiqa/billing/internal/errors"
)

// InMemoryAccountStore implements account.Repository
type InMemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*account.Account
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{accounts: make(map[uuid.UUID]*account.Account)}
}

func (m *InMemoryAccountStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[uuid.UUID]*account.Account)
}

func (m *InMemoryAccountStore) Create(ctx context.Context, a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; ok {
		return ierr.NewError("account already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	for _, existing := range m.accounts {
		if existing.WalletAddress == a.WalletAddress {
			return ierr.NewError("wallet address already registered").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *InMemoryAccountStore) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ierr.NewError("account not found").
			WithHint("Account not found").
			Mark(ierr.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *InMemoryAccountStore) GetByWalletAddress(ctx context.Context, addr string) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if a.WalletAddress == addr {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ierr.NewError("account not found").
		WithHint("No account uses this wallet address").
		Mark(ierr.ErrNotFound)
}

func (m *InMemoryAccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return ierr.NewError("account not found").
			Mark(ierr.ErrNotFound)
	}
	delete(m.accounts, id)
	return nil
}
