package testutil

import (
	"context"

	"github.com/storiqa/billing/internal/postgres"
)

// MockIClient satisfies postgres.IClient for tests. In-memory stores do
// not share transactional state, so WithTx just runs the function.
type MockIClient struct{}

func NewMockIClient() postgres.IClient {
	return &MockIClient{}
}

func (m *MockIClient) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
