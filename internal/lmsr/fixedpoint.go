// Package lmsr implements the pricing and settlement core of a Logarithmic
// Market Scoring Rule market maker: D9 fixed-point exponential and natural
// logarithm approximations, the market numeric record, and the cost, price,
// and share-purchase operations built on them.
//
// All math is deterministic integer arithmetic. Values are scaled by 1e9
// ("D9": the integer 1_000_000_000 represents the real value 1.0) and
// intermediates are carried at 128-bit width, emulated with math/big plus
// explicit range checks since Go has no native 128-bit integers.
package lmsr

import "math/big"

const (
	// D9 is the fixed-point scale: 1.0 == 1e9.
	D9 = 1_000_000_000

	// D18 is the internal precision used by the exponential series. The
	// coarser D9 accumulation loses ~5 ULP on Exp(1.0), which is enough to
	// push cost results outside their published tolerances.
	D18 = D9 * D9

	// EScaled is Euler's number in D9 fixed point, used by Ln's range
	// reduction.
	EScaled = 2_718_281_828

	// maxSeriesTerms bounds both Taylor series. Convergence usually exits
	// earlier via the sub-ULP term check.
	maxSeriesTerms = 20

	// expDomainBound clamps Exp's argument to ±20.0: beyond it the series
	// no longer converges acceptably and downstream products would leave
	// the 128-bit width.
	expDomainBound = 20 * D9

	// maxLnDepth caps Ln's range-reduction recursion. Each Euler reduction
	// divides the argument by e, so any 128-bit input reduces in well under
	// 64 steps; the cap only guards against pathological states.
	maxLnDepth = 64
)

var (
	bigD9  = big.NewInt(D9)
	bigD18 = big.NewInt(D18)
	bigE   = big.NewInt(EScaled)
	big2D9 = big.NewInt(2 * D9)

	bigExpLo = big.NewInt(-expDomainBound)
	bigExpHi = big.NewInt(expDomainBound)

	// 128-bit working-width bounds.
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// addI128 returns a+b, failing if the sum leaves the signed 128-bit range.
func addI128(a, b *big.Int) (*big.Int, error) {
	z := new(big.Int).Add(a, b)
	if z.Cmp(maxI128) > 0 || z.Cmp(minI128) < 0 {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// addU128 returns a+b, failing if the sum leaves the unsigned 128-bit range.
func addU128(a, b *big.Int) (*big.Int, error) {
	z := new(big.Int).Add(a, b)
	if z.Sign() < 0 || z.Cmp(maxU128) > 0 {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// mulU128 returns a*b, failing if the product leaves the unsigned 128-bit
// range.
func mulU128(a, b *big.Int) (*big.Int, error) {
	z := new(big.Int).Mul(a, b)
	if z.Sign() < 0 || z.Cmp(maxU128) > 0 {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// subU128 returns a-b, failing on underflow below zero.
func subU128(a, b *big.Int) (*big.Int, error) {
	z := new(big.Int).Sub(a, b)
	if z.Sign() < 0 {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// Exp computes e^(x/1e9) in D9 fixed point: the argument is a signed
// D9-scaled exponent, the result an unsigned D9-scaled magnitude.
//
// Arguments above +20.0 saturate to the maximum unsigned 128-bit value
// rather than overflowing; below -20.0 the result is zero. Inside the
// domain a truncated Taylor series e^x = sum x^n/n! runs for at most 20
// terms, accumulated at D18 precision with the term recurrence
// term_n = term_{n-1} * x / 1e9 / n, exiting early once a term falls below
// one ULP. Accumulation is overflow-checked; a negative final sum (possible
// from truncation near the lower bound) clamps to zero.
func Exp(x *big.Int) (*big.Int, error) {
	if x.Cmp(bigExpHi) > 0 {
		return new(big.Int).Set(maxU128), nil
	}
	if x.Cmp(bigExpLo) < 0 {
		return big.NewInt(0), nil
	}

	result := new(big.Int).Set(bigD18)
	term := new(big.Int).Set(bigD18)
	var err error
	for n := int64(1); n <= maxSeriesTerms; n++ {
		term.Mul(term, x)
		term.Quo(term, bigD9)
		term.Quo(term, big.NewInt(n))

		// Sub-ULP term: the series has converged.
		if term.Sign() == 0 {
			break
		}

		result, err = addI128(result, term)
		if err != nil {
			return nil, err
		}
	}

	if result.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return result.Quo(result, bigD9), nil
}

// Ln computes ln(x/1e9) in D9 fixed point: the argument is an unsigned
// D9-scaled magnitude, the result a signed D9-scaled logarithm.
//
// Ln(0) is a domain error. Ln(1e9) is exactly zero. Arguments below 1.0 are
// folded through ln(1/x) = -ln(x); arguments at or above 2.0 are folded
// through ln(x) = ln(x/e) + 1 until the series' convergence interval is
// reached. The reduction at exactly 2.0 is deliberate: the alternating
// series at y = 1.0 sits on its convergence boundary and 20 terms truncate
// ln 2 to 0.6688.
func Ln(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 || x.Cmp(maxU128) > 0 {
		return nil, ErrMathOverflow
	}
	return lnReduce(x, 0)
}

func lnReduce(x *big.Int, depth int) (*big.Int, error) {
	if depth >= maxLnDepth {
		return nil, ErrMathOverflow
	}
	if x.Sign() == 0 {
		return nil, ErrMathOverflow // ln(0) undefined
	}
	if x.Cmp(bigD9) == 0 {
		return big.NewInt(0), nil
	}

	// ln(x) = -ln(1/x) for x < 1.
	if x.Cmp(bigD9) < 0 {
		inv := new(big.Int).Quo(bigD18, x)
		v, err := lnReduce(inv, depth+1)
		if err != nil {
			return nil, err
		}
		return v.Neg(v), nil
	}

	// ln(x) = ln(x/e) + 1 folds large arguments toward [1, 2).
	if x.Cmp(big2D9) >= 0 {
		reduced := new(big.Int).Mul(x, bigD9)
		reduced.Quo(reduced, bigE)
		v, err := lnReduce(reduced, depth+1)
		if err != nil {
			return nil, err
		}
		return addI128(v, bigD9)
	}

	// ln(1+y) = y - y^2/2 + y^3/3 - ... with y = x - 1.
	y := new(big.Int).Sub(x, bigD9)
	result := big.NewInt(0)
	yPower := new(big.Int).Set(y)
	var err error
	for n := int64(1); n <= maxSeriesTerms; n++ {
		term := new(big.Int).Quo(yPower, big.NewInt(n))
		if n%2 == 0 {
			term.Neg(term)
		}

		if term.Sign() == 0 {
			break
		}

		result, err = addI128(result, term)
		if err != nil {
			return nil, err
		}
		yPower.Mul(yPower, y)
		yPower.Quo(yPower, bigD9)
	}

	return result, nil
}
