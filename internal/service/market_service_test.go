package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictcore/lmsrd/internal/domain"
	"github.com/predictcore/lmsrd/internal/lmsr"
)

// --- in-memory fakes -------------------------------------------------------

type fakeTx struct {
	store      *fakeMarketStore
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	lastTx  *fakeTx
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{markets: make(map[string]domain.Market)}
}

func (s *fakeMarketStore) Create(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	return nil
}

func (s *fakeMarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeMarketStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

func (s *fakeMarketStore) Begin(ctx context.Context) (domain.Tx, error) {
	tx := &fakeTx{store: s}
	s.lastTx = tx
	return tx, nil
}

func (s *fakeMarketStore) GetForUpdate(ctx context.Context, tx domain.Tx, id string) (domain.Market, error) {
	return s.GetByID(ctx, id)
}

func (s *fakeMarketStore) UpdateState(ctx context.Context, tx domain.Tx, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = m
	return nil
}

type fakeTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (s *fakeTradeStore) Insert(ctx context.Context, tx domain.Tx, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

func (s *fakeTradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].MarketID == marketID {
			out = append(out, s.trades[i])
		}
	}
	return out, nil
}

func (s *fakeTradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.CreatedAt.Before(before) {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeTradeStore) DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := s.trades[:0]
	var removed int64
	for _, t := range s.trades {
		drop := false
		if t.CreatedAt.Before(before) {
			for _, id := range ids {
				if t.ID == id {
					drop = true
					break
				}
			}
		}
		if drop {
			removed++
		} else {
			keep = append(keep, t)
		}
	}
	s.trades = keep
	return removed, nil
}

type fakePriceCache struct {
	mu    sync.Mutex
	snaps map[string]domain.PriceSnapshot
	sets  int
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{snaps: make(map[string]domain.PriceSnapshot)}
}

func (c *fakePriceCache) Set(ctx context.Context, marketID string, snap domain.PriceSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[marketID] = snap
	c.sets++
	return nil
}

func (c *fakePriceCache) Get(ctx context.Context, marketID string) (domain.PriceSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[marketID]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *fakePriceCache) Invalidate(ctx context.Context, marketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, marketID)
	return nil
}

type fakeSignalBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeSignalBus() *fakeSignalBus {
	return &fakeSignalBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *fakeSignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeSignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *fakeSignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- market service --------------------------------------------------------

func newMarketService(t *testing.T, at time.Time) (*MarketService, *fakeMarketStore, *fakePriceCache) {
	t.Helper()
	store := newFakeMarketStore()
	cache := newFakePriceCache()
	svc := NewMarketService(store, cache, testLogger())
	svc.now = func() time.Time { return at }
	return svc, store, cache
}

func TestMarketServiceCreate(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, store, cache := newMarketService(t, at)

	m, err := svc.Create(ctx, CreateParams{
		Label:     "  BTC above 100k by April  ",
		Admin:     "admin-1",
		Outcomes:  2,
		Scale:     1_000_000_000,
		ResolveAt: at.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "BTC above 100k by April", m.Label)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Equal(t, uint8(2), m.State.NumOutcomes)
	assert.Equal(t, uint64(1_000_000_000), m.State.Scale)

	stored, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Label, stored.Label)

	// Cache is seeded with the fresh market's uniform prices.
	snap, err := cache.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{500_000_000, 500_000_000}, snap.Prices)
	assert.Equal(t, uint64(693_147_180), snap.Cost)
}

func TestMarketServiceCreateValidation(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newMarketService(t, at)

	valid := CreateParams{
		Label:     "test market",
		Outcomes:  2,
		Scale:     1_000_000_000,
		ResolveAt: at.Add(time.Hour),
	}

	cases := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr error
	}{
		{"empty label", func(p *CreateParams) { p.Label = "   " }, domain.ErrInvalidLabel},
		{"label too long", func(p *CreateParams) {
			long := make([]byte, domain.MaxLabelLen+1)
			for i := range long {
				long[i] = 'x'
			}
			p.Label = string(long)
		}, domain.ErrInvalidLabel},
		{"resolve in the past", func(p *CreateParams) { p.ResolveAt = at.Add(-time.Hour) }, domain.ErrResolveTime},
		{"resolve too soon", func(p *CreateParams) { p.ResolveAt = at.Add(domain.MinMarketDuration / 2) }, domain.ErrResolveTime},
		{"one outcome", func(p *CreateParams) { p.Outcomes = 1 }, lmsr.ErrNotEnoughOutcomes},
		{"too many outcomes", func(p *CreateParams) { p.Outcomes = lmsr.MaxOutcomes + 1 }, lmsr.ErrTooManyOutcomes},
		{"zero scale", func(p *CreateParams) { p.Scale = 0 }, lmsr.ErrScaleIsZero},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			_, err := svc.Create(ctx, p)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestMarketServiceGetReportsExpiry(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newMarketService(t, at)

	m, err := svc.Create(ctx, CreateParams{
		Label:     "short lived",
		Outcomes:  2,
		Scale:     1_000_000_000,
		ResolveAt: at.Add(time.Hour),
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, got.Status)

	// Jump past the resolve time; the read reports expired even though the
	// stored row still says open.
	svc.now = func() time.Time { return at.Add(2 * time.Hour) }
	got, err = svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusExpired, got.Status)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketServicePricesBackfillsCache(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, cache := newMarketService(t, at)

	m, err := svc.Create(ctx, CreateParams{
		Label:     "cache test",
		Outcomes:  3,
		Scale:     1_000_000_000,
		ResolveAt: at.Add(time.Hour),
	})
	require.NoError(t, err)

	// Drop the seeded entry to force the store path.
	require.NoError(t, cache.Invalidate(ctx, m.ID))

	snap, err := svc.Prices(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{333_333_333, 333_333_333, 333_333_333}, snap.Prices)
	assert.Equal(t, uint64(1_098_612_290), snap.Cost)

	// The miss back-filled the cache.
	cached, err := cache.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Prices, cached.Prices)

	_, err = svc.Prices(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
