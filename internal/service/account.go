package service

import (
	"context"
	"fmt"
	"time"

	"github.com/storiqa/billing/internal/clients/payments"
	"github.com/storiqa/billing/internal/domain/account"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// AccountService manages the pool of gateway wallet accounts that
// receive crypto invoice payments.
type AccountService interface {
	// GetOrCreateFreePooledAccount returns a wallet of the given currency
	// that no unpaid invoice is using, creating one on the gateway when
	// the pool has room.
	GetOrCreateFreePooledAccount(ctx context.Context, currency types.Currency) (*account.Account, error)
}

type accountService struct {
	ServiceParams
}

func NewAccountService(params ServiceParams) AccountService {
	return &accountService{ServiceParams: params}
}

func (s *accountService) GetOrCreateFreePooledAccount(ctx context.Context, currency types.Currency) (*account.Account, error) {
	if s.PaymentsClient == nil {
		return nil, errPaymentsNotConfigured
	}
	if !currency.IsCrypto() {
		return nil, ierr.NewError("pooled accounts only exist for cryptocurrencies").
			WithReportableDetails(map[string]interface{}{
				"currency": currency,
			}).
			Mark(ierr.ErrValidation)
	}

	remote, err := s.PaymentsClient.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, r := range remote {
		if r.Currency != currency {
			continue
		}
		total++

		cached, err := s.cacheAccount(ctx, r)
		if err != nil {
			return nil, err
		}

		// A wallet is free when no invoice currently points at it.
		_, err = s.InvoiceRepo.GetByAccountID(ctx, cached.ID)
		if ierr.IsNotFound(err) {
			return cached, nil
		}
		if err != nil {
			return nil, err
		}
	}

	if uint32(total) >= s.Config.Payments.MaxAccounts {
		return nil, ierr.NewError("no free pooled account available").
			WithHintf("All %d %s wallets are occupied by unpaid invoices", total, currency).
			Mark(ierr.ErrSystem)
	}

	created, err := s.PaymentsClient.CreateAccount(ctx, payments.CreateAccountInput{
		ID:       types.GenerateUUID(),
		Currency: currency,
		Name:     fmt.Sprintf("pooled %s %d", currency, total+1),
	})
	if err != nil {
		return nil, err
	}

	cached, err := s.cacheAccount(ctx, *created)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("created pooled account",
		"account_id", cached.ID,
		"currency", currency,
		"pool_size", total+1,
	)
	return cached, nil
}

// cacheAccount upserts the gateway account into the local ledger.
func (s *accountService) cacheAccount(ctx context.Context, r payments.Account) (*account.Account, error) {
	existing, err := s.AccountRepo.Get(ctx, r.ID)
	if err == nil {
		return existing, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	a := &account.Account{
		ID:            r.ID,
		Currency:      r.Currency,
		WalletAddress: r.WalletAddress,
		IsPooled:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.AccountRepo.Create(ctx, a); err != nil {
		// Lost a race against a concurrent checkout; the row is there.
		if ierr.IsAlreadyExists(err) {
			return s.AccountRepo.Get(ctx, a.ID)
		}
		return nil, err
	}
	return a, nil
}
