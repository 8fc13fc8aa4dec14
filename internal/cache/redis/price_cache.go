package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predictcore/lmsrd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// snapshot lives at "market:prices:{id}" with one "p:{outcome}" field per
// outcome plus "cost", "n" and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID string) string {
	return "market:prices:" + marketID
}

// Set stores the full pricing snapshot for a market.
func (pc *PriceCache) Set(ctx context.Context, marketID string, snap domain.PriceSnapshot) error {
	key := priceKey(marketID)
	fields := map[string]interface{}{
		"cost": strconv.FormatUint(snap.Cost, 10),
		"n":    strconv.Itoa(len(snap.Prices)),
		"ts":   strconv.FormatInt(snap.TakenAt.UnixNano(), 10),
	}
	for i, p := range snap.Prices {
		fields["p:"+strconv.Itoa(i)] = strconv.FormatUint(p, 10)
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID, err)
	}
	return nil
}

// Get retrieves the pricing snapshot for a market. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) Get(ctx context.Context, marketID string) (domain.PriceSnapshot, error) {
	key := priceKey(marketID)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}

	nStr, ok := vals["n"]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	n, err := strconv.Atoi(nStr)
	if err != nil || n < 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: parse outcome count %s: %w", marketID, err)
	}

	snap := domain.PriceSnapshot{Prices: make([]uint64, n)}
	for i := 0; i < n; i++ {
		pStr, ok := vals["p:"+strconv.Itoa(i)]
		if !ok {
			return domain.PriceSnapshot{}, domain.ErrNotFound
		}
		p, err := strconv.ParseUint(pStr, 10, 64)
		if err != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("redis: parse price %s[%d]: %w", marketID, i, err)
		}
		snap.Prices[i] = p
	}

	if costStr, ok := vals["cost"]; ok {
		snap.Cost, err = strconv.ParseUint(costStr, 10, 64)
		if err != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("redis: parse cost %s: %w", marketID, err)
		}
	}
	if tsStr, ok := vals["ts"]; ok {
		tsNano, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
		}
		snap.TakenAt = time.Unix(0, tsNano)
	}

	return snap, nil
}

// Invalidate drops the cached snapshot for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
