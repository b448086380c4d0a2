package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"pricefeed/internal/version"
)

const simplePricePath = "/simple/price"

// CoinGeckoOptions parameterise the price API client.
type CoinGeckoOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// CoinGecko fetches USD spot prices from the simple price endpoint.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *resty.Client
	baseURL string
}

// NewCoinGecko constructs the price API client.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", userAgent)
	if opts.APIKey != "" {
		client.SetHeader("x-cg-pro-api-key", opts.APIKey)
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko").Logger(),
		client:  client,
		baseURL: baseURL,
	}
}

// FetchSpots returns the USD price for each requested id. Ids missing from the
// response are omitted from the map.
func (c *CoinGecko) FetchSpots(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetQueryParam("vs_currencies", "usd").
		Get(c.baseURL + simplePricePath)
	if err != nil {
		return nil, fmt.Errorf("coingecko request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("coingecko api error (%d): %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("coingecko returned invalid json")
	}

	parsed := gjson.ParseBytes(body)
	prices := make(map[string]float64, len(ids))
	for _, id := range ids {
		usd := parsed.Get(id).Get("usd")
		if !usd.Exists() {
			c.logger.Warn().Str("id", id).Msg("price missing from response")
			continue
		}
		prices[id] = usd.Float()
	}
	return prices, nil
}

var _ SpotFetcher = (*CoinGecko)(nil)
