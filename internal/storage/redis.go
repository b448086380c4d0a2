package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"pricefeed/internal/config"
)

// Publisher exposes the latest feed value to low-latency readers.
type Publisher interface {
	Publish(ctx context.Context, symbol string, rec PriceRecord) error
}

// RedisPublisher writes feed values as plain keys: <prefix><symbol> holds the float
// and <prefix><symbol>:normalized holds the fixed-point string.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPublisher connects lazily; go-redis dials on first command.
func NewRedisPublisher(cfg config.RedisConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisPublisher{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

func (p *RedisPublisher) priceKey(symbol string) string {
	return p.prefix + strings.ToLower(symbol)
}

func (p *RedisPublisher) normalizedKey(symbol string) string {
	return p.priceKey(symbol) + ":normalized"
}

// Publish stores both representations in one transaction.
func (p *RedisPublisher) Publish(ctx context.Context, symbol string, rec PriceRecord) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.priceKey(symbol), strconv.FormatFloat(rec.PriceFloat, 'f', -1, 64), p.ttl)
		pipe.Set(ctx, p.normalizedKey(symbol), rec.PriceNormalized, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", symbol, err)
	}
	return nil
}

// Latest reads back the published float price.
func (p *RedisPublisher) Latest(ctx context.Context, symbol string) (float64, error) {
	raw, err := p.client.Get(ctx, p.priceKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

// Close releases the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

var _ Publisher = (*RedisPublisher)(nil)
