package domain

import (
	"context"
	"time"
)

// PriceSnapshot is the cached pricing state of one market.
type PriceSnapshot struct {
	Prices  []uint64
	Cost    uint64
	TakenAt time.Time
}

// PriceCache provides fast access to the latest per-market prices.
type PriceCache interface {
	Set(ctx context.Context, marketID string, snap PriceSnapshot) error
	Get(ctx context.Context, marketID string) (PriceSnapshot, error)
	Invalidate(ctx context.Context, marketID string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter bounds how often a keyed action may happen inside a rolling
// window. Allow counts the attempt when it is admitted; Wait blocks until
// an attempt is admitted or the context ends.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
