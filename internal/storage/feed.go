package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"pricefeed/internal/oracle"
)

// FeedStore reads and writes token histories and feed values on top of a BlobStore.
//
// Layout under prefix: history/<symbol>.json holds the JSON array of samples,
// price/<symbol>.json holds {"priceFloat","priceNormalized"}.
type FeedStore struct {
	blobs  BlobStore
	prefix string
	logger zerolog.Logger
}

// NewFeedStore wraps blobs.
func NewFeedStore(blobs BlobStore, prefix string, logger zerolog.Logger) *FeedStore {
	return &FeedStore{
		blobs:  blobs,
		prefix: prefix,
		logger: logger.With().Str("component", "feed_store").Logger(),
	}
}

// HistoryKey is the blob key of a token's history.
func (s *FeedStore) HistoryKey(symbol string) string {
	return s.prefix + "history/" + strings.ToLower(symbol) + ".json"
}

// PriceKey is the blob key of a token's feed value.
func (s *FeedStore) PriceKey(symbol string) string {
	return s.prefix + "price/" + strings.ToLower(symbol) + ".json"
}

// LoadHistory returns the persisted history. Missing or unreadable state yields an
// empty history; only transport errors are returned.
func (s *FeedStore) LoadHistory(ctx context.Context, symbol string) (oracle.History, error) {
	body, err := s.blobs.Get(ctx, s.HistoryKey(symbol))
	if errors.Is(err, ErrNotFound) {
		return oracle.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", symbol, err)
	}

	var history oracle.History
	if err := json.Unmarshal(body, &history); err != nil {
		s.logger.Warn().Err(err).Str("token", symbol).Msg("stored history unreadable; starting empty")
		return oracle.History{}, nil
	}
	return history, nil
}

// LoadPrice returns the last persisted feed value.
func (s *FeedStore) LoadPrice(ctx context.Context, symbol string) (PriceRecord, error) {
	body, err := s.blobs.Get(ctx, s.PriceKey(symbol))
	if err != nil {
		return PriceRecord{}, err
	}
	var rec PriceRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return PriceRecord{}, fmt.Errorf("decode price %s: %w", symbol, err)
	}
	return rec, nil
}

// Save writes the history first and the feed value second, so a reader never sees a
// price that is newer than its history.
func (s *FeedStore) Save(ctx context.Context, snap FeedSnapshot) error {
	history := snap.History
	if history == nil {
		history = oracle.History{}
	}
	historyBody, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", snap.Symbol, err)
	}
	priceBody, err := json.Marshal(snap.Price)
	if err != nil {
		return fmt.Errorf("encode price %s: %w", snap.Symbol, err)
	}

	if err := s.blobs.Put(ctx, s.HistoryKey(snap.Symbol), historyBody, contentTypeJSON); err != nil {
		return err
	}
	return s.blobs.Put(ctx, s.PriceKey(snap.Symbol), priceBody, contentTypeJSON)
}

// SaveJSON stores an arbitrary document under prefix+key.
func (s *FeedStore) SaveJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.blobs.Put(ctx, s.prefix+key, body, contentTypeJSON)
}

// LoadJSON decodes the document under prefix+key into v.
func (s *FeedStore) LoadJSON(ctx context.Context, key string, v any) error {
	body, err := s.blobs.Get(ctx, s.prefix+key)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
