package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/predictcore/lmsrd/internal/domain"
)

// PriceChannel is the Pub/Sub channel carrying price-update events;
// TradeStream is the durable stream the same events are appended to.
const (
	PriceChannel = "markets:prices"
	TradeStream  = "trades"
)

// TradeService executes purchases against market state and serves quotes.
type TradeService struct {
	markets domain.MarketStore
	trades  domain.TradeStore
	prices  domain.PriceCache
	bus     domain.SignalBus
	logger  *slog.Logger
	now     func() time.Time
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	markets domain.MarketStore,
	trades domain.TradeStore,
	prices domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets: markets,
		trades:  trades,
		prices:  prices,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// priceEvent is the payload published after each executed trade.
type priceEvent struct {
	Event     string   `json:"event"`
	TradeID   string   `json:"trade_id"`
	MarketID  string   `json:"market_id"`
	Outcome   int      `json:"outcome"`
	AmountIn  uint64   `json:"amount_in"`
	SharesOut uint64   `json:"shares_out"`
	Prices    []uint64 `json:"prices"`
	Cost      uint64   `json:"cost"`
	Timestamp string   `json:"timestamp"`
}

// Buy executes a purchase of amountIn on the given outcome. The market row
// is locked for the duration of the transaction, so concurrent purchases on
// one market apply one at a time; the numeric state and the journal row
// commit together or not at all.
func (s *TradeService) Buy(ctx context.Context, marketID string, outcome int, amountIn uint64) (domain.Trade, error) {
	tx, err := s.markets.Begin(ctx)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := s.markets.GetForUpdate(ctx, tx, marketID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: lock market %q: %w", marketID, err)
	}

	now := s.now().UTC()
	if m.Expired(now) {
		// Persist the transition so reads stop reporting the market open.
		if m.Status != domain.MarketStatusExpired {
			m.Status = domain.MarketStatusExpired
			if updErr := s.markets.UpdateState(ctx, tx, m); updErr == nil {
				_ = tx.Commit(ctx)
			}
		}
		return domain.Trade{}, domain.ErrMarketExpired
	}

	shares, err := m.State.BuyShares(outcome, amountIn)
	if err != nil {
		return domain.Trade{}, err
	}

	snap, err := snapshotOf(&m, now)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: snapshot after trade: %w", err)
	}

	trade := domain.Trade{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		Outcome:    outcome,
		AmountIn:   amountIn,
		SharesOut:  shares,
		PriceAfter: snap.Prices[outcome],
		CostAfter:  snap.Cost,
		CreatedAt:  now,
	}

	if err := s.markets.UpdateState(ctx, tx, m); err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: persist state: %w", err)
	}
	if err := s.trades.Insert(ctx, tx, trade); err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: journal trade: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: commit: %w", err)
	}

	// Post-commit fan-out. Failures here degrade freshness, not correctness,
	// so they log instead of erroring.
	if cacheErr := s.prices.Set(ctx, marketID, snap); cacheErr != nil {
		s.logger.WarnContext(ctx, "trade_service: cache refresh failed",
			slog.String("market_id", marketID),
			slog.String("error", cacheErr.Error()),
		)
	}

	evt, _ := json.Marshal(priceEvent{
		Event:     "trade_executed",
		TradeID:   trade.ID,
		MarketID:  marketID,
		Outcome:   outcome,
		AmountIn:  amountIn,
		SharesOut: shares,
		Prices:    snap.Prices,
		Cost:      snap.Cost,
		Timestamp: now.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, PriceChannel, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "trade_service: publish event failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", pubErr.Error()),
		)
	}
	if streamErr := s.bus.StreamAppend(ctx, TradeStream, evt); streamErr != nil {
		s.logger.WarnContext(ctx, "trade_service: stream append failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", streamErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "trade_service: executed trade",
		slog.String("trade_id", trade.ID),
		slog.String("market_id", marketID),
		slog.Int("outcome", outcome),
		slog.Uint64("amount_in", amountIn),
		slog.Uint64("shares_out", shares),
	)

	return trade, nil
}

// Quote returns a read-only pricing snapshot of a market without touching
// its state.
func (s *TradeService) Quote(ctx context.Context, marketID string) (domain.Quote, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("trade_service: quote %q: %w", marketID, err)
	}

	snap, err := snapshotOf(&m, s.now().UTC())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("trade_service: quote snapshot %q: %w", marketID, err)
	}

	var sum uint64
	for _, p := range snap.Prices {
		sum += p
	}

	return domain.Quote{
		MarketID: marketID,
		Cost:     snap.Cost,
		Prices:   snap.Prices,
		PriceSum: sum,
		TakenAt:  snap.TakenAt,
	}, nil
}

// ListTrades returns the journal for a market, newest first.
func (s *TradeService) ListTrades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades %q: %w", marketID, err)
	}
	return trades, nil
}
