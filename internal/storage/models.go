package storage

import (
	"time"

	"pricefeed/internal/oracle"
)

// PriceRecord is the persisted feed value of one token.
type PriceRecord struct {
	PriceFloat      float64 `json:"priceFloat"`
	PriceNormalized string  `json:"priceNormalized"`
	Timestamp       int64   `json:"timestamp,omitempty"`
}

// FeedSnapshot bundles the outputs of one successful cycle for a token.
type FeedSnapshot struct {
	Symbol  string
	History oracle.History
	Price   PriceRecord
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}
