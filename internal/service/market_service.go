// Package service implements the application use cases on top of the domain
// stores and caches.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/predictcore/lmsrd/internal/domain"
	"github.com/predictcore/lmsrd/internal/lmsr"
)

// MarketService handles market creation and read paths.
type MarketService struct {
	markets domain.MarketStore
	prices  domain.PriceCache
	logger  *slog.Logger
	now     func() time.Time
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	prices domain.PriceCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		prices:  prices,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateParams are the caller-supplied fields of a new market.
type CreateParams struct {
	Label     string
	Admin     string
	Outcomes  uint8
	Scale     uint64
	ResolveAt time.Time
}

// Create validates params, initializes a fresh all-zero numeric state, and
// persists the market.
func (s *MarketService) Create(ctx context.Context, p CreateParams) (domain.Market, error) {
	label := strings.TrimSpace(p.Label)
	if label == "" || len(label) > domain.MaxLabelLen {
		return domain.Market{}, domain.ErrInvalidLabel
	}

	now := s.now().UTC()
	if p.ResolveAt.Before(now.Add(domain.MinMarketDuration)) {
		return domain.Market{}, domain.ErrResolveTime
	}

	state, err := lmsr.NewMarket(p.Outcomes, p.Scale)
	if err != nil {
		return domain.Market{}, err
	}

	m := domain.Market{
		ID:        uuid.NewString(),
		Label:     label,
		Admin:     p.Admin,
		Status:    domain.MarketStatusOpen,
		State:     *state,
		ResolveAt: p.ResolveAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	// Seed the price cache so the first read does not miss. Non-fatal: the
	// read path back-fills on miss.
	if snap, snapErr := snapshotOf(&m, now); snapErr == nil {
		if cacheErr := s.prices.Set(ctx, m.ID, snap); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache seed failed",
				slog.String("market_id", m.ID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: created market",
		slog.String("market_id", m.ID),
		slog.String("label", m.Label),
		slog.Int("outcomes", int(p.Outcomes)),
		slog.Uint64("scale", p.Scale),
	)

	return m, nil
}

// Get retrieves a market by ID. The returned status reflects expiry even
// before a trade has persisted the transition.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}
	if m.Status == domain.MarketStatusOpen && m.Expired(s.now().UTC()) {
		m.Status = domain.MarketStatusExpired
	}
	return m, nil
}

// List returns markets directly from the persistent store.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// Prices returns the pricing snapshot for a market, checking the cache first
// and recomputing from the persistent state on a miss.
func (s *MarketService) Prices(ctx context.Context, id string) (domain.PriceSnapshot, error) {
	snap, err := s.prices.Get(ctx, id)
	if err == nil {
		return snap, nil
	}

	// Cache miss or error -- fall through to store.
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("market_service: prices %q: %w", id, err)
	}

	snap, err = snapshotOf(&m, s.now().UTC())
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("market_service: price snapshot %q: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.prices.Set(ctx, id, snap); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return snap, nil
}

// snapshotOf evaluates cost and every outcome price of a market's current
// numeric state.
func snapshotOf(m *domain.Market, at time.Time) (domain.PriceSnapshot, error) {
	cost, err := m.State.Cost()
	if err != nil {
		return domain.PriceSnapshot{}, err
	}

	prices := make([]uint64, m.State.NumOutcomes)
	for i := range prices {
		p, err := m.State.Price(i)
		if err != nil {
			return domain.PriceSnapshot{}, err
		}
		prices[i] = p
	}

	return domain.PriceSnapshot{Prices: prices, Cost: cost, TakenAt: at}, nil
}
