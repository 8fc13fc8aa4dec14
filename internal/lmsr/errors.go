package lmsr

import "errors"

// The pricing core reports every failure through this closed set. Callers
// branch on these with errors.Is; nothing here is recovered internally.
var (
	// ErrMathOverflow covers any checked add/sub/mul/div that would leave
	// the 128-bit working width, and Ln of zero.
	ErrMathOverflow = errors.New("math overflow")

	// ErrInvalidOutcomeIndex is returned for an outcome index outside
	// [0, NumOutcomes).
	ErrInvalidOutcomeIndex = errors.New("invalid outcome index")

	// ErrTooManyOutcomes is returned when NumOutcomes exceeds MaxOutcomes.
	ErrTooManyOutcomes = errors.New("too many outcomes")

	// ErrNotEnoughOutcomes is returned when NumOutcomes is below MinOutcomes.
	ErrNotEnoughOutcomes = errors.New("outcome count is below two")

	// ErrScaleIsZero is returned when the liquidity parameter is zero. A
	// zero scale is a construction error, never a reachable runtime state.
	ErrScaleIsZero = errors.New("liquidity parameter is zero")

	// ErrDepositIsZero rejects purchases that would mint zero shares,
	// including economically meaningless deposits too small to move the
	// cost function by a whole share.
	ErrDepositIsZero = errors.New("deposit mints zero shares")
)
