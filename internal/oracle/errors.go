// Package oracle turns noisy spot quotes into a manipulation-resistant reference price.
package oracle

import "errors"

var (
	// ErrInvalidSample indicates a negative, NaN or infinite price.
	ErrInvalidSample = errors.New("invalid sample price")
	// ErrInsufficientHistory indicates an empty history was passed to TWAP.
	ErrInsufficientHistory = errors.New("insufficient price history for TWAP")
	// ErrDivisionByZero indicates no time elapsed across accepted samples.
	ErrDivisionByZero = errors.New("twap window has zero accepted duration")
	// ErrNoLiquidity indicates the blended quotes carry zero total weight.
	ErrNoLiquidity = errors.New("no liquidity across quotes")
	// ErrZeroReserves indicates a pool reported a zero reserve.
	ErrZeroReserves = errors.New("pool has zero reserves")
	// ErrSampleSource wraps failures of the quote source passed to Engine.Run.
	ErrSampleSource = errors.New("sample source")
	// ErrInvalidDecimals indicates a negative decimal precision.
	ErrInvalidDecimals = errors.New("decimals must be non-negative")
)
