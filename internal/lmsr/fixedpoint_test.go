package lmsr

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpValues(t *testing.T) {
	cases := []struct {
		name string
		in   int64
		want uint64
	}{
		{"zero", 0, 1_000_000_000},
		{"one ulp", 1, 1_000_000_001},
		{"half", 500_000_000, 1_648_721_270},
		{"0.8", 800_000_000, 2_225_540_928},
		{"one", 1_000_000_000, 2_718_281_828},
		{"two", 2_000_000_000, 7_389_056_098},
		{"four", 4_000_000_000, 54_598_149_928},
		{"ten", 10_000_000_000, 21_991_482_025_665},
		{"twenty", 20_000_000_000, 271_252_262_880_755_523},
		{"minus half", -500_000_000, 606_530_659},
		{"minus one", -1_000_000_000, 367_879_441},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Exp(big.NewInt(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Uint64())
		})
	}
}

func TestExpClamps(t *testing.T) {
	over, err := Exp(big.NewInt(20_000_000_001))
	require.NoError(t, err)
	assert.Equal(t, 0, over.Cmp(maxU128), "above +20 saturates to max u128")

	under, err := Exp(big.NewInt(-20_000_000_001))
	require.NoError(t, err)
	assert.Zero(t, under.Sign(), "below -20 collapses to zero")
}

func TestLnValues(t *testing.T) {
	cases := []struct {
		name string
		in   uint64
		want int64
	}{
		{"one ulp", 1, -20_723_265_837},
		{"two ulp", 2, -20_030_118_660},
		{"half", 500_000_000, -693_147_180},
		{"just below one", 999_999_999, -1},
		{"one", 1_000_000_000, 0},
		{"just above one", 1_000_000_001, 1},
		{"four ulp above one", 1_000_000_004, 4},
		{"1.5", 1_500_000_000, 405_465_093},
		{"two", 2_000_000_000, 693_147_180},
		{"e", 2_718_281_828, 1_000_000_000},
		{"three", 3_000_000_000, 1_098_612_290},
		{"ten", 10_000_000_000, 2_302_585_094},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Ln(new(big.Int).SetUint64(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Int64())
		})
	}
}

func TestLnDomain(t *testing.T) {
	_, err := Ln(big.NewInt(0))
	assert.ErrorIs(t, err, ErrMathOverflow)

	_, err = Ln(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrMathOverflow)

	tooWide := new(big.Int).Add(maxU128, big.NewInt(1))
	_, err = Ln(tooWide)
	assert.ErrorIs(t, err, ErrMathOverflow)
}

// ln(e^x) should reproduce x to within the truncation of the two series.
// Where the reduced logarithm argument lands near the top of the series
// interval the 20-term cut costs a few thousand ULPs (a few parts per
// million), so the bound is loose.
func TestLnExpRoundTrip(t *testing.T) {
	for _, x := range []int64{100_000_000, 500_000_000, 1_000_000_000, 2_500_000_000, 5_000_000_000} {
		e, err := Exp(big.NewInt(x))
		require.NoError(t, err)
		back, err := Ln(e)
		require.NoError(t, err)
		assert.InDelta(t, float64(x), float64(back.Int64()), 5_000, "x=%d", x)
	}
}
