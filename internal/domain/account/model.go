package account

import (
	"time"

	"github.com/google/uuid"

	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// Account is a blockchain wallet issued by the crypto gateway. Pooled
// accounts receive funds for many invoices; the inbound transaction id
// keeps deposits apart.
type Account struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Currency      types.Currency `db:"currency" json:"currency"`
	WalletAddress string         `db:"wallet_address" json:"wallet_address"`
	IsPooled      bool           `db:"is_pooled" json:"is_pooled"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

func (a *Account) TableName() string {
	return "accounts"
}

func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return ierr.NewError("account id is required").
			Mark(ierr.ErrValidation)
	}
	if !a.Currency.IsCrypto() {
		return ierr.NewError("account currency must be a cryptocurrency").
			WithReportableDetails(map[string]interface{}{
				"account_id": a.ID,
				"currency":   a.Currency,
			}).
			Mark(ierr.ErrValidation)
	}
	if a.WalletAddress == "" {
		return ierr.NewError("account wallet address is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
