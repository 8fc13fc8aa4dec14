package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictcore/lmsrd/internal/domain"
	"github.com/predictcore/lmsrd/internal/lmsr"
)

func newTradeService(t *testing.T, at time.Time) (*TradeService, *fakeMarketStore, *fakeTradeStore, *fakePriceCache, *fakeSignalBus) {
	t.Helper()
	markets := newFakeMarketStore()
	trades := &fakeTradeStore{}
	cache := newFakePriceCache()
	bus := newFakeSignalBus()
	svc := NewTradeService(markets, trades, cache, bus, testLogger())
	svc.now = func() time.Time { return at }
	return svc, markets, trades, cache, bus
}

func seedMarket(t *testing.T, markets *fakeMarketStore, resolveAt time.Time) domain.Market {
	t.Helper()
	state, err := lmsr.NewMarket(2, 1_000_000_000)
	require.NoError(t, err)

	m := domain.Market{
		ID:        "mkt-1",
		Label:     "test market",
		Status:    domain.MarketStatusOpen,
		State:     *state,
		ResolveAt: resolveAt,
	}
	require.NoError(t, markets.Create(context.Background(), m))
	return m
}

func TestTradeServiceBuy(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, markets, trades, cache, bus := newTradeService(t, at)
	seedMarket(t, markets, at.Add(time.Hour))

	trade, err := svc.Buy(ctx, "mkt-1", 0, 500_000_000)
	require.NoError(t, err)

	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, "mkt-1", trade.MarketID)
	assert.Equal(t, 0, trade.Outcome)
	assert.Equal(t, uint64(500_000_000), trade.AmountIn)
	assert.Equal(t, uint64(1_000_000_000), trade.SharesOut)
	assert.Equal(t, uint64(731_058_578), trade.PriceAfter)
	assert.InDelta(t, uint64(1_313_261_688), trade.CostAfter, 1)

	// The state mutation was persisted through the transaction.
	require.NotNil(t, markets.lastTx)
	assert.True(t, markets.lastTx.committed)
	stored, err := markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), stored.State.Reserves[0])
	assert.Equal(t, uint64(1_000_000_000), stored.State.Supplies[0])
	assert.Zero(t, stored.State.Supplies[1])

	// The journal got exactly one row.
	require.Len(t, trades.trades, 1)
	assert.Equal(t, trade.ID, trades.trades[0].ID)

	// Post-commit fan-out refreshed the cache and published the event.
	snap, err := cache.Get(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, trade.PriceAfter, snap.Prices[0])

	require.Len(t, bus.published[PriceChannel], 1)
	require.Len(t, bus.streamed[TradeStream], 1)

	var evt struct {
		Event     string `json:"event"`
		TradeID   string `json:"trade_id"`
		SharesOut uint64 `json:"shares_out"`
	}
	require.NoError(t, json.Unmarshal(bus.published[PriceChannel][0], &evt))
	assert.Equal(t, "trade_executed", evt.Event)
	assert.Equal(t, trade.ID, evt.TradeID)
	assert.Equal(t, trade.SharesOut, evt.SharesOut)
}

func TestTradeServiceBuyExpiredMarket(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, markets, trades, _, bus := newTradeService(t, at)
	seedMarket(t, markets, at.Add(-time.Minute))

	_, err := svc.Buy(ctx, "mkt-1", 0, 500_000_000)
	assert.ErrorIs(t, err, domain.ErrMarketExpired)

	// The rejection persisted the status flip so reads stop reporting open.
	stored, err := markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusExpired, stored.Status)
	assert.Zero(t, stored.State.Reserves[0])

	assert.Empty(t, trades.trades)
	assert.Empty(t, bus.published[PriceChannel])
}

func TestTradeServiceBuyRejections(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, markets, trades, _, _ := newTradeService(t, at)
	seedMarket(t, markets, at.Add(time.Hour))

	_, err := svc.Buy(ctx, "missing", 0, 500_000_000)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Buy(ctx, "mkt-1", 2, 500_000_000)
	assert.ErrorIs(t, err, lmsr.ErrInvalidOutcomeIndex)

	_, err = svc.Buy(ctx, "mkt-1", 0, 0)
	assert.ErrorIs(t, err, lmsr.ErrDepositIsZero)

	// An amount too small to mint a whole share is rejected with no mutation.
	_, err = svc.Buy(ctx, "mkt-1", 0, 1)
	assert.ErrorIs(t, err, lmsr.ErrDepositIsZero)

	stored, err := markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Zero(t, stored.State.Reserves[0])
	assert.Zero(t, stored.State.Supplies[0])
	assert.Empty(t, trades.trades)
}

func TestTradeServiceQuote(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, markets, _, _, _ := newTradeService(t, at)
	seedMarket(t, markets, at.Add(time.Hour))

	quote, err := svc.Quote(ctx, "mkt-1")
	require.NoError(t, err)

	assert.Equal(t, "mkt-1", quote.MarketID)
	assert.Equal(t, uint64(693_147_180), quote.Cost)
	assert.Equal(t, []uint64{500_000_000, 500_000_000}, quote.Prices)
	assert.Equal(t, uint64(1_000_000_000), quote.PriceSum)
	assert.Equal(t, at, quote.TakenAt)

	_, err = svc.Quote(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTradeServiceListTrades(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, markets, _, _, _ := newTradeService(t, at)
	seedMarket(t, markets, at.Add(time.Hour))

	_, err := svc.Buy(ctx, "mkt-1", 0, 500_000_000)
	require.NoError(t, err)
	_, err = svc.Buy(ctx, "mkt-1", 1, 800_000_000)
	require.NoError(t, err)

	listed, err := svc.ListTrades(ctx, "mkt-1", domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	// Newest first.
	assert.Equal(t, 1, listed[0].Outcome)
	assert.Equal(t, uint64(4_000_000_000), listed[0].SharesOut)
	assert.Equal(t, 0, listed[1].Outcome)
}
