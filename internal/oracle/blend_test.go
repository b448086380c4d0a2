package oracle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlend(t *testing.T) {
	price, err := Blend([]PoolQuote{{Price: 10, Weight: 1}, {Price: 20, Weight: 3}})
	require.NoError(t, err)
	assert.Equal(t, 17.5, price)
}

func TestBlendNoLiquidity(t *testing.T) {
	_, err := Blend(nil)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	_, err = Blend([]PoolQuote{{Price: 10, Weight: 0}, {Price: 11, Weight: 0}})
	assert.ErrorIs(t, err, ErrNoLiquidity)
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func TestPairPrice(t *testing.T) {
	// 1,000,000 TOKEN (18 decimals) against 50,000 USDC (6 decimals).
	r0 := new(big.Int).Mul(big.NewInt(1_000_000), pow10(18))
	r1 := new(big.Int).Mul(big.NewInt(50_000), pow10(6))

	price, err := PairPrice(r0, r1, 18, 6, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, price, 1e-15)

	inverted, err := PairPrice(r0, r1, 18, 6, true)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, inverted, 1e-12)
}

func TestPairPriceZeroReserves(t *testing.T) {
	_, err := PairPrice(big.NewInt(0), big.NewInt(5), 18, 18, false)
	assert.ErrorIs(t, err, ErrZeroReserves)

	_, err = PairPrice(big.NewInt(5), new(big.Int), 18, 18, true)
	assert.ErrorIs(t, err, ErrZeroReserves)

	_, err = PairPrice(nil, big.NewInt(5), 18, 18, false)
	assert.ErrorIs(t, err, ErrZeroReserves)
}

func TestChainPrice(t *testing.T) {
	assert.InDelta(t, 0.5*4.0, ChainPrice(0.5, 4.0), 1e-15)
	assert.Equal(t, 1.0, ChainPrice())
}
