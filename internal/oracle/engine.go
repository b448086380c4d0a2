package oracle

import (
	"context"
	"fmt"
)

// SampleSource produces the quotes for one cycle of a token.
type SampleSource func(ctx context.Context) ([]PoolQuote, error)

// Params configure the engine for a single token.
type Params struct {
	// Window is the trailing TWAP and outlier window in seconds.
	Window int64
	// Decimals is the fixed-point precision of the rendered price.
	Decimals int32
	// Sigma is the outlier band half-width; zero means DefaultSigma.
	Sigma float64
	// Retention prunes persisted samples older than this many seconds; zero keeps all.
	// The price of the current cycle is always computed on the unpruned history.
	Retention int64
}

// Validate checks that the parameters describe a usable window.
func (p Params) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", p.Window)
	}
	if p.Decimals < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, p.Decimals)
	}
	if p.Sigma < 0 {
		return fmt.Errorf("sigma cannot be negative, got %v", p.Sigma)
	}
	if p.Retention != 0 && p.Retention < p.Window {
		return fmt.Errorf("retention %d shorter than window %d", p.Retention, p.Window)
	}
	return nil
}

// Result is the complete output of one cycle.
type Result struct {
	History    History
	Spot       float64
	Price      float64
	Normalized string
	Band       Band
	Outliers   int
}

// Engine blends, merges, filters, averages and renders. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine validates params and builds an engine.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Sigma == 0 {
		params.Sigma = DefaultSigma
	}
	return &Engine{params: params}, nil
}

// Params returns the effective parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Update blends quotes into one spot sample at timestamp, merges it into history and
// computes the new reference price. history is not modified.
func (e *Engine) Update(history History, quotes []PoolQuote, timestamp int64) (Result, error) {
	spot, err := Blend(quotes)
	if err != nil {
		return Result{}, err
	}
	return e.UpdateSpot(history, spot, timestamp)
}

// UpdateSpot is Update for a token with a single pre-computed spot price.
func (e *Engine) UpdateSpot(history History, spot float64, timestamp int64) (Result, error) {
	merged, err := Merge(history, Sample{Timestamp: timestamp, Price: spot})
	if err != nil {
		return Result{}, err
	}

	price, band, outliers, err := twap(merged, e.params.Window, e.params.Sigma)
	if err != nil {
		return Result{}, err
	}
	normalized, err := Render(price, e.params.Decimals)
	if err != nil {
		return Result{}, err
	}

	kept := merged
	if e.params.Retention > 0 {
		kept = Compact(merged, e.params.Retention, timestampOf(merged))
	}

	return Result{
		History:    kept,
		Spot:       spot,
		Price:      price,
		Normalized: normalized,
		Band:       band,
		Outliers:   outliers,
	}, nil
}

func timestampOf(h History) int64 {
	last, _ := h.Last()
	return last.Timestamp
}

// Run pulls quotes from source and performs Update.
func (e *Engine) Run(ctx context.Context, history History, source SampleSource, timestamp int64) (Result, error) {
	quotes, err := source(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSampleSource, err)
	}
	return e.Update(history, quotes, timestamp)
}
