package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/domain/account"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/logger"
	"github.com/storiqa/billing/internal/postgres"
)

type accountRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAccountRepository(db *postgres.DB, logger *logger.Logger) account.Repository {
	return &accountRepository{db: db, logger: logger}
}

func (r *accountRepository) Create(ctx context.Context, a *account.Account) error {
	query := `
		INSERT INTO accounts (id, currency, wallet_address, is_pooled, created_at)
		VALUES (:id, :currency, :wallet_address, :is_pooled, :created_at)`

	r.logger.Debugw("caching account", "account_id", a.ID, "currency", a.Currency)

	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		if pqErr, ok := asPqError(err); ok && pqErr.Code == pgUniqueViolation {
			return ierr.WithError(err).
				WithHint("Account already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create account").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return r.getBy(ctx, "SELECT * FROM accounts WHERE id = :id", map[string]interface{}{"id": id})
}

func (r *accountRepository) GetByWalletAddress(ctx context.Context, addr string) (*account.Account, error) {
	return r.getBy(ctx,
		"SELECT * FROM accounts WHERE wallet_address = :wallet_address",
		map[string]interface{}{"wallet_address": addr},
	)
}

func (r *accountRepository) getBy(ctx context.Context, query string, args map[string]interface{}) (*account.Account, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get account").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("account not found").
			WithHint("Account not found").
			Mark(ierr.ErrNotFound)
	}

	var a account.Account
	if err := rows.StructScan(&a); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan account").
			Mark(ierr.ErrDatabase)
	}
	return &a, nil
}

func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NamedExecContext(ctx, "DELETE FROM accounts WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete account").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
