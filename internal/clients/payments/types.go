package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storiqa/billing/internal/types"
)

// GetRateInput reserves an exchange quote on the gateway. The id is a
// caller-minted idempotency key.
type GetRateInput struct {
	ID             uuid.UUID      `json:"id"`
	From           types.Currency `json:"from"`
	To             types.Currency `json:"to"`
	AmountCurrency types.Currency `json:"amountCurrency"`
	Amount         types.Amount   `json:"amount"`
}

// Rate is a reserved exchange quote. The id doubles as the exchange_id
// stored on the order's rate row.
type Rate struct {
	ID        uuid.UUID       `json:"id"`
	From      types.Currency  `json:"from"`
	To        types.Currency  `json:"to"`
	Amount    types.Amount    `json:"amount"`
	Rate      decimal.Decimal `json:"rate"`
	ExpiresAt time.Time       `json:"expiration"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RateRefresh reports whether refreshing produced a different quote.
type RateRefresh struct {
	Rate      Rate `json:"rate"`
	IsNewRate bool `json:"isNewRate"`
}

// CreateAccountInput opens a wallet account. The id is a caller-minted
// idempotency key so retried creates do not leak accounts.
type CreateAccountInput struct {
	ID          uuid.UUID      `json:"id"`
	Currency    types.Currency `json:"currency"`
	Name        string         `json:"name"`
	CallbackURL string         `json:"callbackUrl,omitempty"`
}

// Account is the gateway's view of a wallet account.
type Account struct {
	ID            uuid.UUID      `json:"id"`
	Currency      types.Currency `json:"currency"`
	WalletAddress string         `json:"accountAddress"`
	Name          string         `json:"name"`
	Balance       types.Amount   `json:"balance"`
}

// InboundTxCallback is the webhook body sent when funds land on an
// account. Amounts arrive as decimal strings of minor units.
type InboundTxCallback struct {
	URL            string         `json:"url"`
	TransactionID  string         `json:"transactionId"`
	AmountCaptured string         `json:"amountCaptured"`
	Currency       types.Currency `json:"currency"`
	Address        string         `json:"address"`
	AccountID      *uuid.UUID     `json:"accountId,omitempty"`
}
