package types

import (
	ierr "github.com/storiqa/billing/internal/errors"
)

// Currency is a settlement currency supported by the billing service.
// Crypto currencies are denominated in their chain's minor unit
// (wei, satoshi), fiat currencies in cents.
type Currency string

const (
	CurrencyETH Currency = "eth"
	CurrencyBTC Currency = "btc"
	CurrencySTQ Currency = "stq"
	CurrencyEUR Currency = "eur"
	CurrencyUSD Currency = "usd"
	CurrencyRUB Currency = "rub"
)

func (c Currency) IsCrypto() bool {
	switch c {
	case CurrencyETH, CurrencyBTC, CurrencySTQ:
		return true
	}
	return false
}

func (c Currency) IsFiat() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyRUB:
		return true
	}
	return false
}

// Decimals returns the number of minor-unit digits in one super-unit.
func (c Currency) Decimals() int32 {
	switch c {
	case CurrencyETH, CurrencySTQ:
		return 18
	case CurrencyBTC:
		return 8
	default:
		return 2
	}
}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) Validate() error {
	if !c.IsCrypto() && !c.IsFiat() {
		return ierr.NewError("unsupported currency").
			WithHintf("Currency %s is not supported", c).
			Mark(ierr.ErrValidation)
	}
	return nil
}
