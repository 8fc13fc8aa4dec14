package lmsr

import (
	"math"
	"math/big"
)

const (
	// MaxOutcomes bounds the per-market outcome arrays. Downstream
	// consumers (indexers, pricing clients) depend on this bound being
	// fixed and known, so it is a compile-time constant.
	MaxOutcomes = 16

	// MinOutcomes is the smallest meaningful market: a single-outcome
	// market has nothing to price.
	MinOutcomes = 2
)

// Market is the numeric state of one LMSR market. Reserves and supplies are
// indexed by outcome: Reserves[i] is the cumulative amount paid into
// outcome i in the settlement asset's smallest unit, Supplies[i] the
// cumulative D9-scaled shares minted for it. Both are monotonically
// non-decreasing; the only mutation path is BuyShares.
//
// Scale is the LMSR liquidity parameter b, in the same unit as reserves.
// Higher values flatten the price response to trades.
type Market struct {
	Reserves    [MaxOutcomes]uint64
	Supplies    [MaxOutcomes]uint64
	Scale       uint64
	NumOutcomes uint8
}

// NewMarket returns a fresh market with all reserves and supplies zero.
func NewMarket(numOutcomes uint8, scale uint64) (*Market, error) {
	if numOutcomes < MinOutcomes {
		return nil, ErrNotEnoughOutcomes
	}
	if numOutcomes > MaxOutcomes {
		return nil, ErrTooManyOutcomes
	}
	if scale == 0 {
		return nil, ErrScaleIsZero
	}
	return &Market{Scale: scale, NumOutcomes: numOutcomes}, nil
}

// supplyRatio returns q_i/b as a D9-scaled ratio.
func (m *Market) supplyRatio(i int) *big.Int {
	r := new(big.Int).SetUint64(m.Supplies[i])
	r.Mul(r, bigD9)
	return r.Quo(r, new(big.Int).SetUint64(m.Scale))
}

// sumExp computes S = sum exp(q_j/b) over the active outcomes with
// overflow-checked accumulation.
func (m *Market) sumExp() (*big.Int, error) {
	sum := big.NewInt(0)
	for i := 0; i < int(m.NumOutcomes); i++ {
		e, err := Exp(m.supplyRatio(i))
		if err != nil {
			return nil, err
		}
		sum, err = addU128(sum, e)
		if err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// Cost evaluates the LMSR cost function
//
//	C(q) = b * ln(sum exp(q_i / b))
//
// in the settlement asset's smallest unit. This is the total backing the
// current supply vector requires; purchases pay the marginal increase of it.
func (m *Market) Cost() (uint64, error) {
	if m.NumOutcomes > MaxOutcomes {
		return 0, ErrTooManyOutcomes
	}
	if m.Scale == 0 {
		return 0, ErrScaleIsZero
	}

	sum, err := m.sumExp()
	if err != nil {
		return 0, err
	}
	lnSum, err := Ln(sum)
	if err != nil {
		return 0, err
	}

	cost := new(big.Int).SetUint64(m.Scale)
	cost.Mul(cost, lnSum)
	cost.Quo(cost, bigD9)

	// A negative cost indicates numeric corruption upstream, not a valid
	// market state.
	if cost.Sign() < 0 || !cost.IsUint64() {
		return 0, ErrMathOverflow
	}
	return cost.Uint64(), nil
}

// Price returns the instantaneous price (probability) of an outcome,
//
//	p_i = exp(q_i / b) / sum exp(q_j / b)
//
// scaled to D9, so 1.0 == 1_000_000_000. Prices across the active outcomes
// sum to one unit of probability within one ULP of rounding.
func (m *Market) Price(outcome int) (uint64, error) {
	if m.NumOutcomes > MaxOutcomes {
		return 0, ErrTooManyOutcomes
	}
	if outcome < 0 || outcome >= int(m.NumOutcomes) {
		return 0, ErrInvalidOutcomeIndex
	}
	if m.Scale == 0 {
		return 0, ErrScaleIsZero
	}

	expQi, err := Exp(m.supplyRatio(outcome))
	if err != nil {
		return 0, err
	}
	sum, err := m.sumExp()
	if err != nil {
		return 0, err
	}

	// Should not occur: Exp never returns below 1e9 for a non-negative
	// ratio. Defended rather than divided by.
	if sum.Sign() == 0 {
		return 0, nil
	}

	price, err := mulU128(expQi, bigD9)
	if err != nil {
		return 0, err
	}
	price.Quo(price, sum)

	if !price.IsUint64() {
		return math.MaxUint64, nil
	}
	return price.Uint64(), nil
}

// BuyShares executes a purchase of amountIn (smallest units) on the given
// outcome and returns the D9-scaled shares minted. The share count is the
// closed-form inversion of the cost function for a single-outcome supply
// change:
//
//	dq = b * ln(S * (exp(amountIn/b) - 1) / exp(q_i/b) + 1)
//
// On success both Supplies[outcome] and Reserves[outcome] are updated; on
// any error the market is left untouched. A purchase too small to mint a
// whole share fails with ErrDepositIsZero instead of succeeding as a
// zero-value mutation.
func (m *Market) BuyShares(outcome int, amountIn uint64) (uint64, error) {
	if outcome < 0 || outcome >= int(m.NumOutcomes) {
		return 0, ErrInvalidOutcomeIndex
	}
	if amountIn == 0 {
		return 0, ErrDepositIsZero
	}
	if m.Scale == 0 {
		return 0, ErrScaleIsZero
	}

	sum, err := m.sumExp()
	if err != nil {
		return 0, err
	}

	expQi, err := Exp(m.supplyRatio(outcome))
	if err != nil {
		return 0, err
	}

	amountRatio := new(big.Int).SetUint64(amountIn)
	amountRatio.Mul(amountRatio, bigD9)
	amountRatio.Quo(amountRatio, new(big.Int).SetUint64(m.Scale))
	expAmount, err := Exp(amountRatio)
	if err != nil {
		return 0, err
	}

	// S * (exp(amountIn/b) - 1), rescaled out of the product's double D9.
	growth, err := subU128(expAmount, bigD9)
	if err != nil {
		return 0, err
	}
	numerator, err := mulU128(sum, growth)
	if err != nil {
		return 0, err
	}
	numerator.Quo(numerator, bigD9)

	if expQi.Sign() == 0 {
		// Unreachable while Exp clamps its domain, but never divide blind.
		return 0, ErrMathOverflow
	}
	fraction := numerator.Quo(numerator, expQi)

	lnArg, err := addU128(fraction, bigD9)
	if err != nil {
		return 0, err
	}
	lnResult, err := Ln(lnArg)
	if err != nil {
		return 0, err
	}

	shares := new(big.Int).SetUint64(m.Scale)
	shares.Mul(shares, lnResult)
	if shares.Cmp(maxI128) > 0 || shares.Cmp(minI128) < 0 {
		return 0, ErrMathOverflow
	}
	if shares.Sign() <= 0 {
		return 0, ErrDepositIsZero
	}
	if !shares.IsUint64() {
		return 0, ErrMathOverflow
	}
	sharesOut := shares.Uint64()

	// Both updates are validated before either is applied: there is no
	// state where one lands without the other.
	newSupply := m.Supplies[outcome] + sharesOut
	if newSupply < m.Supplies[outcome] {
		return 0, ErrMathOverflow
	}
	newReserve := m.Reserves[outcome] + amountIn
	if newReserve < m.Reserves[outcome] {
		return 0, ErrMathOverflow
	}
	m.Supplies[outcome] = newSupply
	m.Reserves[outcome] = newReserve

	return sharesOut, nil
}
