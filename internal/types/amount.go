package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	ierr "github.com/storiqa/billing/internal/errors"
)

// Amount is a non-negative monetary amount in a currency's minor unit
// (wei for ETH/STQ, satoshi for BTC, cents for fiat). Minor-unit values
// for 18-decimal currencies exceed uint64, so the backing integer is
// arbitrary precision. Stored in Postgres as NUMERIC(39,0).
type Amount struct {
	value *big.Int
}

// NewAmount returns an Amount holding the given minor-unit value.
func NewAmount(v uint64) Amount {
	return Amount{value: new(big.Int).SetUint64(v)}
}

// NewAmountFromBigInt copies v into an Amount. Negative values are rejected.
func NewAmountFromBigInt(v *big.Int) (Amount, error) {
	if v == nil || v.Sign() < 0 {
		return Amount{}, ierr.NewError("amount must be a non-negative integer").
			Mark(ierr.ErrValidation)
	}
	return Amount{value: new(big.Int).Set(v)}, nil
}

// NewAmountFromString parses a base-10 minor-unit amount.
func NewAmountFromString(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, ierr.NewError("amount has wrong format").
			WithHintf("Amount %q is not a base-10 integer", s).
			Mark(ierr.ErrValidation)
	}
	return NewAmountFromBigInt(v)
}

// AmountFromSuperUnit converts a super-unit decimal (whole coins / whole
// currency) into minor units, rounding half to even.
func AmountFromSuperUnit(c Currency, d decimal.Decimal) Amount {
	minor := d.Shift(c.Decimals()).RoundBank(0)
	v := minor.BigInt()
	if v.Sign() < 0 {
		v = new(big.Int)
	}
	return Amount{value: v}
}

func (a Amount) bigInt() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return a.value
}

// BigInt returns a copy of the backing integer.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.bigInt())
}

// ToSuperUnit converts the minor-unit value into super-units of c.
func (a Amount) ToSuperUnit(c Currency) decimal.Decimal {
	return decimal.NewFromBigInt(a.bigInt(), 0).Shift(-c.Decimals())
}

// ToUint64 returns the minor-unit value as uint64, failing when it does
// not fit. Used for the card gateway which takes plain integers.
func (a Amount) ToUint64() (uint64, error) {
	v := a.bigInt()
	if !v.IsUint64() {
		return 0, ierr.NewError("amount does not fit into uint64").
			WithHintf("Amount %s is too large", v.String()).
			Mark(ierr.ErrSystem)
	}
	return v.Uint64(), nil
}

func (a Amount) Add(b Amount) Amount {
	return Amount{value: new(big.Int).Add(a.bigInt(), b.bigInt())}
}

// MulDiv returns a * mul / div using integer division.
func (a Amount) MulDiv(mul, div uint64) (Amount, error) {
	if div == 0 {
		return Amount{}, ierr.NewError("division by zero in amount conversion").
			Mark(ierr.ErrSystem)
	}
	v := new(big.Int).Mul(a.bigInt(), new(big.Int).SetUint64(mul))
	v.Quo(v, new(big.Int).SetUint64(div))
	return Amount{value: v}, nil
}

func (a Amount) Cmp(b Amount) int {
	return a.bigInt().Cmp(b.bigInt())
}

func (a Amount) IsZero() bool {
	return a.bigInt().Sign() == 0
}

func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

func (a Amount) String() string {
	return a.bigInt().String()
}

// Value implements driver.Valuer; amounts travel as NUMERIC strings.
func (a Amount) Value() (driver.Value, error) {
	return a.bigInt().String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.value = new(big.Int)
		return nil
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("amount: negative value %d", v)
		}
		a.value = big.NewInt(v)
		return nil
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return fmt.Errorf("amount: non-integer value %v", v)
		}
		a.value, _ = decimal.NewFromFloat(v).BigFloat().Int(nil)
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T", src)
	}
}

func (a *Amount) scanString(s string) error {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("amount: cannot parse %q", s)
	}
	a.value = v
	return nil
}

// MarshalJSON renders the amount as a decimal string to keep precision
// across JSON consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.bigInt().String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Tolerate bare numbers from older producers.
		var n json.Number
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return err
		}
		s = n.String()
	}
	return a.scanString(s)
}
