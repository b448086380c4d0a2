package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"pricefeed/internal/oracle"
	"pricefeed/internal/storage"
)

// Show prints the stored feed value and the most recent samples of a token.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	token, ok := a.Config.Token(opts.Token)
	if !ok {
		return fmt.Errorf("token %q not configured", opts.Token)
	}

	feed, _, closeStore, err := a.openFeed(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := feed.LoadPrice(ctx, token.Symbol)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintf(a.Stdout, "%s: no price recorded yet\n", token.Symbol)
	case err != nil:
		return err
	default:
		fmt.Fprintf(a.Stdout, "%s: price=%s normalized=%s decimals=%d\n",
			token.Symbol, formatPrice(rec.PriceFloat), rec.PriceNormalized, token.Precision())
	}

	if a.Config.Redis.Enabled {
		a.showPublished(ctx, token.Symbol)
	}

	history, err := feed.LoadHistory(ctx, token.Symbol)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(a.Stdout, "no samples found")
		return nil
	}

	last, _ := history.Last()
	band := oracle.OutlierBand(history, int64(token.Window/time.Second), last.Timestamp)

	recent := history
	if opts.Limit > 0 && opts.Limit < len(recent) {
		recent = recent[len(recent)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tIn band")
	for i := len(recent) - 1; i >= 0; i-- {
		s := recent[i]
		fmt.Fprintf(writer, "%s\t%s\t%t\n",
			time.Unix(s.Timestamp, 0).UTC().Format(time.RFC3339),
			formatPrice(s.Price),
			band.Contains(s.Price),
		)
	}
	writer.Flush()
	fmt.Fprintf(a.Stdout, "samples=%d band=[%s, %s]\n", len(history), formatPrice(band.Low), formatPrice(band.High))
	return nil
}

// showPublished prints the value low-latency readers currently see in Redis.
func (a *App) showPublished(ctx context.Context, symbol string) {
	pub := storage.NewRedisPublisher(a.Config.Redis)
	defer pub.Close()

	latest, err := pub.Latest(ctx, symbol)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintf(a.Stdout, "%s: not published\n", symbol)
	case err != nil:
		a.Logger.Warn().Err(err).Str("token", symbol).Msg("read published price")
	default:
		fmt.Fprintf(a.Stdout, "%s: published=%s\n", symbol, formatPrice(latest))
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
