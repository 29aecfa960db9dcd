package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountSuperUnitRoundTrip(t *testing.T) {
	// 1.5 ETH in wei
	wei, err := NewAmountFromString("1500000000000000000")
	require.NoError(t, err)

	super := wei.ToSuperUnit(CurrencyETH)
	assert.True(t, super.Equal(decimal.RequireFromString("1.5")), "got %s", super)

	back := AmountFromSuperUnit(CurrencyETH, super)
	assert.True(t, back.Equal(wei))
}

func TestAmountFromSuperUnitFiat(t *testing.T) {
	a := AmountFromSuperUnit(CurrencyEUR, decimal.RequireFromString("12.34"))
	assert.Equal(t, "1234", a.String())
}

func TestAmountExceedsUint64(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	a, err := NewAmountFromBigInt(huge)
	require.NoError(t, err)

	_, err = a.ToUint64()
	assert.Error(t, err)
}

func TestAmountRejectsNegative(t *testing.T) {
	_, err := NewAmountFromString("-1")
	assert.Error(t, err)

	_, err = NewAmountFromBigInt(big.NewInt(-5))
	assert.Error(t, err)
}

func TestAmountMulDivTruncates(t *testing.T) {
	a := NewAmount(199)

	onePercent, err := a.MulDiv(1, 100)
	require.NoError(t, err)
	assert.Equal(t, "1", onePercent.String())

	fee, err := onePercent.MulDiv(5, 1)
	require.NoError(t, err)
	assert.Equal(t, "5", fee.String())
}

func TestAmountJSON(t *testing.T) {
	a := NewAmount(42)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(data))

	var decoded Amount
	require.NoError(t, json.Unmarshal([]byte(`"1500000000000000000"`), &decoded))
	assert.Equal(t, "1500000000000000000", decoded.String())

	// bare numbers from older producers
	require.NoError(t, json.Unmarshal([]byte(`42`), &decoded))
	assert.Equal(t, "42", decoded.String())
}

func TestAmountScan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("123456789012345678901234567890"))
	assert.Equal(t, "123456789012345678901234567890", a.String())

	require.NoError(t, a.Scan([]byte("77")))
	assert.Equal(t, "77", a.String())

	require.NoError(t, a.Scan(nil))
	assert.True(t, a.IsZero())

	assert.Error(t, a.Scan("not a number"))
}

func TestAmountZeroValueUsable(t *testing.T) {
	var a Amount
	assert.True(t, a.IsZero())
	assert.Equal(t, "0", a.String())
	assert.Equal(t, 0, a.Cmp(NewAmount(0)))
}
