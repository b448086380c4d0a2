package fetcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"pricefeed/internal/oracle"
)

// Leg is one pair on the path from the token to the quote currency.
type Leg struct {
	Pair      common.Address
	Decimals0 int32
	Decimals1 int32
	Invert    bool
}

// Venue is a liquidity venue whose price is the product of its legs and whose
// weight is the token balance held by the first pair.
type Venue struct {
	Name           string
	Chain          string
	WeightToken    common.Address
	WeightDecimals int32
	Legs           []Leg
}

// VenueSource derives pool quotes for one token across venues.
type VenueSource struct {
	symbol  string
	venues  []Venue
	readers map[string]ReserveReader
	logger  zerolog.Logger
}

// NewVenueSource wires venues to per-chain readers.
func NewVenueSource(symbol string, venues []Venue, readers map[string]ReserveReader, logger zerolog.Logger) (*VenueSource, error) {
	for _, v := range venues {
		if _, ok := readers[v.Chain]; !ok {
			return nil, fmt.Errorf("%w: %s (venue %s)", ErrUnknownChain, v.Chain, v.Name)
		}
		if len(v.Legs) == 0 {
			return nil, fmt.Errorf("venue %s has no legs", v.Name)
		}
	}
	return &VenueSource{
		symbol:  symbol,
		venues:  venues,
		readers: readers,
		logger:  logger.With().Str("component", "venue_source").Str("token", symbol).Logger(),
	}, nil
}

// Quotes reads every venue concurrently. Any failing venue fails the whole set.
func (s *VenueSource) Quotes(ctx context.Context) ([]oracle.PoolQuote, error) {
	quotes := make([]oracle.PoolQuote, len(s.venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, venue := range s.venues {
		i, venue := i, venue
		g.Go(func() error {
			q, err := s.quote(gctx, venue)
			if err != nil {
				return fmt.Errorf("venue %s: %w", venue.Name, err)
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (s *VenueSource) quote(ctx context.Context, venue Venue) (oracle.PoolQuote, error) {
	reader := s.readers[venue.Chain]

	legPrices := make([]float64, 0, len(venue.Legs))
	for _, leg := range venue.Legs {
		r0, r1, err := reader.Reserves(ctx, leg.Pair)
		if err != nil {
			return oracle.PoolQuote{}, err
		}
		price, err := oracle.PairPrice(r0, r1, leg.Decimals0, leg.Decimals1, leg.Invert)
		if err != nil {
			return oracle.PoolQuote{}, fmt.Errorf("pair %s: %w", leg.Pair.Hex(), err)
		}
		legPrices = append(legPrices, price)
	}

	balance, err := reader.BalanceOf(ctx, venue.WeightToken, venue.Legs[0].Pair)
	if err != nil {
		return oracle.PoolQuote{}, err
	}
	weight := decimal.NewFromBigInt(balance, -venue.WeightDecimals).InexactFloat64()
	price := oracle.ChainPrice(legPrices...)

	s.logger.Debug().Str("venue", venue.Name).Float64("price", price).Float64("weight", weight).Msg("venue quoted")
	return oracle.PoolQuote{Price: price, Weight: weight}, nil
}

// SampleSource adapts the venue set to the engine.
func (s *VenueSource) SampleSource() oracle.SampleSource {
	return s.Quotes
}

// SpotSource quotes a single id from a SpotFetcher with unit weight.
func SpotSource(f SpotFetcher, id string) oracle.SampleSource {
	return func(ctx context.Context) ([]oracle.PoolQuote, error) {
		prices, err := f.FetchSpots(ctx, []string{id})
		if err != nil {
			return nil, err
		}
		price, ok := prices[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPrice, id)
		}
		return []oracle.PoolQuote{{Price: price, Weight: 1}}, nil
	}
}
