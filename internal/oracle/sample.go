package oracle

import (
	"fmt"
	"math"
	"slices"
)

// Sample is a single spot observation.
type Sample struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// History is a time-ordered sequence of samples. Equal timestamps are allowed.
type History []Sample

// Validate rejects prices that cannot take part in averaging.
func (s Sample) Validate() error {
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price < 0 {
		return fmt.Errorf("%w: %v at %d", ErrInvalidSample, s.Price, s.Timestamp)
	}
	return nil
}

// Merge returns a new history containing h plus s, sorted by timestamp.
// The sort is stable, so s lands after existing samples sharing its timestamp.
func Merge(h History, s Sample) (History, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	merged := make(History, 0, len(h)+1)
	merged = append(merged, h...)
	merged = append(merged, s)
	slices.SortStableFunc(merged, byTimestamp)
	return merged, nil
}

// NewHistory validates samples and orders them by timestamp, keeping the input order
// of samples that share one.
func NewHistory(samples []Sample) (History, error) {
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	h := slices.Clone(History(samples))
	if h == nil {
		h = History{}
	}
	slices.SortStableFunc(h, byTimestamp)
	return h, nil
}

func byTimestamp(a, b Sample) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	default:
		return 0
	}
}

// Compact drops samples older than reference-retention, keeping the newest sample
// before that cutoff as an anchor: a later TWAP prices the start of its window at the
// last sample preceding it. A non-positive retention keeps everything.
func Compact(h History, retention, reference int64) History {
	if retention <= 0 {
		return h
	}
	cutoff := reference - retention
	idx, _ := slices.BinarySearchFunc(h, cutoff, func(s Sample, t int64) int {
		if s.Timestamp < t {
			return -1
		}
		return 1
	})
	if idx > 0 {
		idx--
	}
	return slices.Clone(h[idx:])
}
