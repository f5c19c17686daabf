package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/quantara/tradewatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each symbol's last observed price is stored as a hash at key
// "price:{symbol}" with fields "price" and "ts" (Unix nanosecond timestamp).
// Symbols are normalized before keying so "BTC/USD" and "btcusd" share one
// entry.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(symbol string) string {
	return "price:" + domain.NormalizeSymbol(symbol)
}

// SetPrice stores the latest price and timestamp for a symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	key := priceKey(symbol)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a symbol.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	key := priceKey(symbol)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// GetPrices retrieves the latest prices for multiple symbols using a
// pipeline. Symbols with no cached price are silently omitted from the
// result map, which is keyed by the normalized symbol.
func (pc *PriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		norm := domain.NormalizeSymbol(sym)
		cmds[norm] = pipe.HGetAll(ctx, priceKey(norm))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(vals["price"], 64)
		if err != nil {
			continue
		}
		result[sym] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
