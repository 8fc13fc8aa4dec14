package domain

import (
	"time"

	"github.com/predictcore/lmsrd/internal/lmsr"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen    MarketStatus = "open"
	MarketStatusExpired MarketStatus = "expired"
)

// MaxLabelLen bounds the human-readable market label.
const MaxLabelLen = 64

// MinMarketDuration is the shortest allowed window between creation and
// resolve time.
const MinMarketDuration = time.Second

// Market is a priced prediction market: lifecycle metadata around the
// numeric LMSR state. State is the authoritative pricing record; everything
// else describes who created the market and when it stops trading.
type Market struct {
	ID        string
	Label     string
	Admin     string
	Status    MarketStatus
	State     lmsr.Market
	ResolveAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the market's trading window has closed at t.
func (m Market) Expired(t time.Time) bool {
	return !t.Before(m.ResolveAt)
}

// Quote is a read-only pricing snapshot of a market.
type Quote struct {
	MarketID string
	Cost     uint64
	Prices   []uint64
	PriceSum uint64
	TakenAt  time.Time
}
