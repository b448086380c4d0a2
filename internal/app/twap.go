package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"pricefeed/internal/oracle"
)

// TwapReport is the offline evaluation of a history file.
type TwapReport struct {
	Samples    int
	Outliers   int
	Band       oracle.Band
	Price      float64
	Normalized string
}

// EvaluateHistory computes the TWAP of a history file as of its last sample. Outliers
// counts the samples the band rejected while averaging, as the live engine reports them.
func EvaluateHistory(opts TwapOptions) (TwapReport, error) {
	body, err := os.ReadFile(opts.File)
	if err != nil {
		return TwapReport{}, err
	}
	var raw []oracle.Sample
	if err := json.Unmarshal(body, &raw); err != nil {
		return TwapReport{}, fmt.Errorf("decode %s: %w", opts.File, err)
	}
	history, err := oracle.NewHistory(raw)
	if err != nil {
		return TwapReport{}, err
	}

	ev, err := oracle.Evaluate(history, int64(opts.Window/time.Second), 0)
	if err != nil {
		return TwapReport{}, err
	}
	normalized, err := oracle.Render(ev.Price, opts.Decimals)
	if err != nil {
		return TwapReport{}, err
	}

	return TwapReport{
		Samples:    len(history),
		Outliers:   ev.Outliers,
		Band:       ev.Band,
		Price:      ev.Price,
		Normalized: normalized,
	}, nil
}

// WriteTwapReport prints the offline evaluation of a history file. It needs no
// configuration and touches no storage.
func WriteTwapReport(w io.Writer, opts TwapOptions) error {
	report, err := EvaluateHistory(opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "samples=%d outliers=%d band=[%s, %s]\nprice=%s\nnormalized=%s\n",
		report.Samples, report.Outliers,
		formatPrice(report.Band.Low), formatPrice(report.Band.High),
		formatPrice(report.Price), report.Normalized)
	return nil
}
