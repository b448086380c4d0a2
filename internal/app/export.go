package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pricefeed/internal/oracle"
)

// ExportPoint is one sample alongside the TWAP the feed would have reported at that time.
type ExportPoint struct {
	Time  time.Time
	Price float64
	TWAP  float64
}

// Export renders a token's history and its rolling TWAP as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	token, ok := a.Config.Token(opts.Token)
	if !ok {
		return fmt.Errorf("token %q not configured", opts.Token)
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	feed, _, closeStore, err := a.openFeed(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	history, err := feed.LoadHistory(ctx, token.Symbol)
	if err != nil {
		return err
	}

	points, err := rollingTWAP(history, int64(token.Window/time.Second))
	if err != nil {
		return err
	}
	points = filterRange(points, opts.From, opts.To)
	if len(points) == 0 {
		a.Logger.Info().Str("token", token.Symbol).Msg("no samples found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Str("token", token.Symbol).Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, token.Symbol, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// rollingTWAP replays the history, evaluating the TWAP over every prefix.
func rollingTWAP(history oracle.History, window int64) ([]ExportPoint, error) {
	points := make([]ExportPoint, 0, len(history))
	for i, s := range history {
		price, err := oracle.TWAP(history[:i+1], window)
		if errors.Is(err, oracle.ErrDivisionByZero) {
			price = math.NaN()
		} else if err != nil {
			return nil, err
		}
		points = append(points, ExportPoint{
			Time:  time.Unix(s.Timestamp, 0).UTC(),
			Price: s.Price,
			TWAP:  price,
		})
	}
	return points, nil
}

func filterRange(points []ExportPoint, from, to *time.Time) []ExportPoint {
	if from == nil && to == nil {
		return points
	}
	out := points[:0:0]
	for _, p := range points {
		if from != nil && p.Time.Before(*from) {
			continue
		}
		if to != nil && !p.Time.Before(*to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func downsamplePoints(points []ExportPoint, max int) []ExportPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]ExportPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []ExportPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "time_utc", "price", "twap"}); err != nil {
		return err
	}
	for _, p := range points {
		twap := ""
		if !math.IsNaN(p.TWAP) {
			twap = strconv.FormatFloat(p.TWAP, 'g', -1, 64)
		}
		record := []string{
			strconv.FormatInt(p.Time.Unix(), 10),
			p.Time.Format(time.RFC3339),
			strconv.FormatFloat(p.Price, 'g', -1, 64),
			twap,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path, symbol string, points []ExportPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(points))
	spot := make([]float64, 0, len(points))
	twapX := make([]time.Time, 0, len(points))
	twap := make([]float64, 0, len(points))
	for _, p := range points {
		x = append(x, p.Time)
		spot = append(spot, p.Price)
		if !math.IsNaN(p.TWAP) {
			twapX = append(twapX, p.Time)
			twap = append(twap, p.TWAP)
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.6g")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Spot",
			XValues: x,
			YValues: spot,
		},
	}
	if len(twap) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "TWAP",
			XValues: twapX,
			YValues: twap,
		})
	}

	graph := chart.Chart{
		Title:  symbol,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
