package domain

import "time"

// Trade is one executed purchase, journaled append-only. Amounts are in the
// settlement asset's smallest unit; shares and price are D9 fixed point.
type Trade struct {
	ID         string
	MarketID   string
	Outcome    int
	AmountIn   uint64
	SharesOut  uint64
	PriceAfter uint64
	CostAfter  uint64
	CreatedAt  time.Time
}
