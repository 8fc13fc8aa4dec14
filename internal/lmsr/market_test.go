package lmsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarket(t *testing.T, outcomes uint8, scale uint64) *Market {
	t.Helper()
	m, err := NewMarket(outcomes, scale)
	require.NoError(t, err)
	return m
}

func TestNewMarketGuards(t *testing.T) {
	_, err := NewMarket(1, D9)
	assert.ErrorIs(t, err, ErrNotEnoughOutcomes)

	_, err = NewMarket(17, D9)
	assert.ErrorIs(t, err, ErrTooManyOutcomes)

	_, err = NewMarket(2, 0)
	assert.ErrorIs(t, err, ErrScaleIsZero)
}

func TestFreshTwoOutcomeMarket(t *testing.T) {
	m := newTestMarket(t, 2, D9)

	cost, err := m.Cost()
	require.NoError(t, err)
	assert.Equal(t, uint64(693_147_180), cost, "b*ln(2)")

	for i := 0; i < 2; i++ {
		p, err := m.Price(i)
		require.NoError(t, err)
		assert.Equal(t, uint64(500_000_000), p)
	}
}

func TestFreshThreeOutcomeMarket(t *testing.T) {
	m := newTestMarket(t, 3, D9)

	cost, err := m.Cost()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_098_612_290), cost, "b*ln(3)")

	var sum uint64
	for i := 0; i < 3; i++ {
		p, err := m.Price(i)
		require.NoError(t, err)
		assert.Equal(t, uint64(333_333_333), p)
		sum += p
	}
	assert.Equal(t, uint64(999_999_999), sum)
}

// Walks the two-trade scenario on a symmetric two-outcome market and checks
// every intermediate against exact integer evaluation of the pipeline.
func TestBuySharesScenario(t *testing.T) {
	m := newTestMarket(t, 2, D9)

	shares, err := m.BuyShares(0, 500_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), shares)
	assert.Equal(t, uint64(1_000_000_000), m.Supplies[0])
	assert.Equal(t, uint64(500_000_000), m.Reserves[0])

	cost, err := m.Cost()
	require.NoError(t, err)
	assert.InDelta(t, 1_313_261_688, float64(cost), 1)

	p0, err := m.Price(0)
	require.NoError(t, err)
	p1, err := m.Price(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(731_058_578), p0)
	assert.Equal(t, uint64(268_941_421), p1)
	assert.Equal(t, uint64(999_999_999), p0+p1)

	shares, err = m.BuyShares(1, 800_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4_000_000_000), shares)
	assert.Equal(t, [2]uint64{1_000_000_000, 4_000_000_000}, [2]uint64{m.Supplies[0], m.Supplies[1]})
	assert.Equal(t, [2]uint64{500_000_000, 800_000_000}, [2]uint64{m.Reserves[0], m.Reserves[1]})

	cost, err = m.Cost()
	require.NoError(t, err)
	assert.Equal(t, uint64(4_048_587_350), cost)

	p0, err = m.Price(0)
	require.NoError(t, err)
	p1, err = m.Price(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(47_425_873), p0)
	assert.Equal(t, uint64(952_574_126), p1)
	assert.Equal(t, uint64(999_999_999), p0+p1)
}

func TestBuySharesGuards(t *testing.T) {
	m := newTestMarket(t, 2, D9)

	_, err := m.BuyShares(-1, D9)
	assert.ErrorIs(t, err, ErrInvalidOutcomeIndex)

	_, err = m.BuyShares(2, D9)
	assert.ErrorIs(t, err, ErrInvalidOutcomeIndex)

	_, err = m.BuyShares(0, 0)
	assert.ErrorIs(t, err, ErrDepositIsZero)

	_, err = m.Price(2)
	assert.ErrorIs(t, err, ErrInvalidOutcomeIndex)
}

// A deposit too small to mint a whole share is rejected and leaves the
// market untouched. One smallest unit against a 1e9 scale truncates to a
// zero share fraction, as does a quarter of scale.
func TestBuySharesDegenerateTrade(t *testing.T) {
	m := newTestMarket(t, 2, D9)

	for _, amount := range []uint64{1, 250_000_000} {
		_, err := m.BuyShares(0, amount)
		assert.ErrorIs(t, err, ErrDepositIsZero, "amount=%d", amount)
	}

	assert.Zero(t, m.Supplies[0], "failed trade must not mint")
	assert.Zero(t, m.Reserves[0], "failed trade must not collect")

	cost, err := m.Cost()
	require.NoError(t, err)
	assert.Equal(t, uint64(693_147_180), cost, "cost unchanged after rejected trades")
}

// Low liquidity means steep price response: on a scale of 1e7, a trade worth
// half of scale moves the purchased outcome by more than a tenth of the
// whole probability mass.
func TestSmallScaleSensitivity(t *testing.T) {
	m := newTestMarket(t, 2, 10_000_000)

	before, err := m.Price(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), before)

	shares, err := m.BuyShares(0, 5_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), shares)

	after, err := m.Price(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(731_058_578), after)
	assert.Greater(t, after-before, uint64(100_000_000))
}

// Cost must strictly increase with every successful purchase and prices must
// keep summing to one within a single ULP, wherever the trades land.
func TestCostMonotoneUnderPurchases(t *testing.T) {
	m := newTestMarket(t, 2, 10_000_000_000)

	prev, err := m.Cost()
	require.NoError(t, err)

	for k := 0; k < 10; k++ {
		_, err := m.BuyShares(k%2, 5_000_000_000)
		require.NoError(t, err, "trade %d", k)

		cost, err := m.Cost()
		require.NoError(t, err)
		assert.Greater(t, cost, prev, "trade %d", k)
		prev = cost

		p0, err := m.Price(0)
		require.NoError(t, err)
		p1, err := m.Price(1)
		require.NoError(t, err)
		sum := p0 + p1
		assert.GreaterOrEqual(t, sum, uint64(D9-1), "trade %d", k)
		assert.LessOrEqual(t, sum, uint64(D9+1), "trade %d", k)
	}
}

// Shares mint in multiples of the scale: the raw fraction quotient floors
// the growth factor, so every successful purchase moves the supply by a
// whole number of scale units.
func TestShareGranularity(t *testing.T) {
	m := newTestMarket(t, 2, D9)

	for _, amount := range []uint64{500_000_000, 800_000_000, 2_000_000_000} {
		shares, err := m.BuyShares(0, amount)
		require.NoError(t, err, "amount=%d", amount)
		assert.Zero(t, shares%m.Scale, "amount=%d shares=%d", amount, shares)
	}
}
