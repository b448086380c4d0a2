package service

import (
	"context"
	"fmt"
	"sort"

	"pricefeed/internal/fetcher"
)

// JSONSaver stores a document under a key.
type JSONSaver interface {
	SaveJSON(ctx context.Context, key string, v any) error
}

// BondTracker snapshots plain spot prices for display. The values are not averaged
// and must not back anything that needs manipulation resistance.
type BondTracker struct {
	fetcher fetcher.SpotFetcher
	names   map[string]string
	key     string
	store   JSONSaver
}

// NewBondTracker maps API ids to short names and stores snapshots under key.
func NewBondTracker(f fetcher.SpotFetcher, names map[string]string, key string, store JSONSaver) *BondTracker {
	return &BondTracker{fetcher: f, names: names, key: key, store: store}
}

// Track fetches, renames and persists one snapshot.
func (b *BondTracker) Track(ctx context.Context) (map[string]float64, error) {
	ids := make([]string, 0, len(b.names))
	for id := range b.names {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	prices, err := b.fetcher.FetchSpots(ctx, ids)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]float64, len(prices))
	for id, price := range prices {
		name, ok := b.names[id]
		if !ok {
			continue
		}
		snapshot[name] = price
	}
	if err := b.store.SaveJSON(ctx, b.key, snapshot); err != nil {
		return nil, fmt.Errorf("save %s: %w", b.key, err)
	}
	return snapshot, nil
}
