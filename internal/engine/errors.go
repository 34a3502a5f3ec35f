package engine

import "errors"

// Every rejection aborts the whole call with a stable, machine-matchable
// reason so automated callers can tell "resubmit with new numbers" from
// "this pool/asset pairing is invalid".
var (
	// ErrWrongTokens is returned when a supplied asset does not belong to the
	// target pair.
	ErrWrongTokens = errors.New("zap: wrong tokens")

	// ErrSameTokens is returned when two distinct assets are required but the
	// caller supplied the same one twice.
	ErrSameTokens = errors.New("zap: same tokens")

	// ErrAmountTooLow is returned when a contribution amount is below the
	// dust threshold.
	ErrAmountTooLow = errors.New("zap: amount too low")

	// ErrReservesTooLow is returned when either pool reserve is below the
	// minimum liquidity floor.
	ErrReservesTooLow = errors.New("zap: reserves too low")

	// ErrQuantityHigherThanLimit is returned when the planned swap would
	// consume more of the sold reserve than the configured reverse ratio
	// allows.
	ErrQuantityHigherThanLimit = errors.New("zap: quantity higher than limit")

	// ErrAmountToSwapTooHigh is returned when the planned rebalancing swap
	// exceeds the caller's supplied input cap.
	ErrAmountToSwapTooHigh = errors.New("zap: amount to swap too high")

	// ErrReentrantCall is returned when a zap entry point is invoked while
	// another call is in flight on the same engine.
	ErrReentrantCall = errors.New("zap: reentrant call")

	// ErrNotOwner is returned when a non-operator calls an administrative
	// function.
	ErrNotOwner = errors.New("zap: caller is not the owner")
)
