package oracle

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Render returns price × 10^decimals truncated toward zero, as base-10 digits.
// The shift happens on the shortest decimal text of price, so no binary rounding
// creeps into the low digits.
func Render(price float64, decimals int32) (string, error) {
	if err := (Sample{Price: price}).Validate(); err != nil {
		return "", err
	}
	if decimals < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}
	return decimal.NewFromFloat(price).Shift(decimals).Truncate(0).String(), nil
}
