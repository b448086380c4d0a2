package oracle

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// PoolQuote is one venue's spot price and the liquidity backing it.
type PoolQuote struct {
	Price  float64 `json:"price"`
	Weight float64 `json:"weight"`
}

// Blend returns the liquidity-weighted average Σ(price·weight)/Σ(weight).
func Blend(quotes []PoolQuote) (float64, error) {
	var priceWeight, weight float64
	for _, q := range quotes {
		priceWeight += q.Price * q.Weight
		weight += q.Weight
	}
	if weight == 0 {
		return 0, fmt.Errorf("%w: %d quotes", ErrNoLiquidity, len(quotes))
	}
	return priceWeight / weight, nil
}

// PairPrice prices token0 in units of token1 from Uniswap-V2 style reserves:
// (reserve1/10^decimals1) / (reserve0/10^decimals0). invert returns token1 in token0.
func PairPrice(reserve0, reserve1 *big.Int, decimals0, decimals1 int32, invert bool) (float64, error) {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return 0, ErrZeroReserves
	}
	amount0 := decimal.NewFromBigInt(reserve0, -decimals0)
	amount1 := decimal.NewFromBigInt(reserve1, -decimals1)
	if invert {
		return amount0.Div(amount1).InexactFloat64(), nil
	}
	return amount1.Div(amount0).InexactFloat64(), nil
}

// ChainPrice multiplies leg prices, e.g. T/I × I/USD = T/USD.
func ChainPrice(legs ...float64) float64 {
	price := 1.0
	for _, leg := range legs {
		price *= leg
	}
	return price
}
