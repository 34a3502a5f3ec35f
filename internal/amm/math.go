// Package amm implements constant-product pool arithmetic over big integers.
// All divisions truncate toward zero and the square root rounds down, so
// results are reproducible against on-chain integer math.
package amm

import (
	"errors"
	"math/big"
)

// Swap fee charged by the router: 0.2% => multiplier 998/1000.
var (
	feeMul = big.NewInt(998)
	feeDen = big.NewInt(1000)
)

var (
	one   = big.NewInt(1)
	two   = big.NewInt(2)
	three = big.NewInt(3)
)

var (
	// ErrInsufficientInput is returned when an input amount is zero, negative,
	// or too small to produce a meaningful result.
	ErrInsufficientInput = errors.New("amm: insufficient input amount")

	// ErrInsufficientLiquidity is returned when a reserve is zero or negative.
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")

	// ErrWrongTradeDirection is returned when the caller-supplied sell flag
	// contradicts which side is actually in excess. This catches stale
	// estimates submitted after reserves moved.
	ErrWrongTradeDirection = errors.New("amm: wrong trade direction")
)

// GetAmountOut returns the maximum output amount for an exact-input swap
// against a constant-product pool, after the swap fee.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 || reserveOut == nil || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	amountInWithFee := new(big.Int).Mul(amountIn, feeMul)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDen)
	denominator.Add(denominator, amountInWithFee)
	return numerator.Div(numerator, denominator), nil
}

// Quote converts an amount of one reserve asset into the equivalent amount of
// the other at the current reserve ratio, with no fee applied.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA == nil || amountA.Sign() < 0 {
		return nil, ErrInsufficientInput
	}
	if reserveA == nil || reserveA.Sign() <= 0 || reserveB == nil || reserveB.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	amountB := new(big.Int).Mul(amountA, reserveB)
	return amountB.Div(amountB, reserveA), nil
}

// Sqrt returns the integer square root of y, rounding down. Babylonian
// method, matching Uniswap v2-core Math.sol.
func Sqrt(y *big.Int) *big.Int {
	if y == nil || y.Sign() <= 0 {
		return big.NewInt(0)
	}
	if y.Cmp(three) <= 0 {
		return big.NewInt(1)
	}
	z := new(big.Int).Set(y)
	x := new(big.Int).Rsh(y, 1)
	x.Add(x, one)
	for x.Cmp(z) < 0 {
		z.Set(x)
		next := new(big.Int).Div(y, x)
		next.Add(next, x)
		x = next.Rsh(next, 1)
	}
	return z
}

// AmountToSwap computes, for a single-sided deposit, how much of amountIn
// must be swapped so that the remainder plus the swap output match the pool
// ratio with only rounding-level dust left over.
//
// Starting from the naive half split, the swap output and the post-trade
// quote give a closed-form price-impact correction:
//
//	amountToSwap = amountIn - sqrt(half*half*out / postTradeQuote)
//
// No iteration is needed; the correction is exact up to floor rounding.
func AmountToSwap(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	half := new(big.Int).Div(amountIn, two)
	out, err := GetAmountOut(half, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	postIn := new(big.Int).Add(reserveIn, half)
	postOut := new(big.Int).Sub(reserveOut, out)
	denominator, err := Quote(half, postIn, postOut)
	if err != nil {
		return nil, err
	}
	if denominator.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	correction := new(big.Int).Mul(half, half)
	correction.Mul(correction, out)
	correction.Div(correction, denominator)
	return new(big.Int).Sub(amountIn, Sqrt(correction)), nil
}

// AmountToSwapForRebalancing computes how much of the excess asset must be
// sold so that an unbalanced two-sided deposit matches the pool ratio.
// sellToken0 is the caller's claim about which side is in excess; if it
// disagrees with the reserves it is rejected with ErrWrongTradeDirection.
//
// With amount1 = 0 (or amount0 = 0 for the inverse direction) the result is
// bit-identical to AmountToSwap on the remaining amount.
func AmountToSwapForRebalancing(amount0, amount1, reserve0, reserve1 *big.Int, sellToken0 bool) (*big.Int, error) {
	if amount0 == nil || amount0.Sign() < 0 || amount1 == nil || amount1.Sign() < 0 {
		return nil, ErrInsufficientInput
	}
	if reserve0 == nil || reserve0.Sign() <= 0 || reserve1 == nil || reserve1.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	left := new(big.Int).Mul(amount0, reserve1)
	right := new(big.Int).Mul(amount1, reserve0)
	sell0 := left.Cmp(right) > 0
	if sell0 != sellToken0 {
		return nil, ErrWrongTradeDirection
	}

	if sell0 {
		return rebalancingSale(amount0, amount1, reserve0, reserve1)
	}
	return rebalancingSale(amount1, amount0, reserve1, reserve0)
}

// rebalancingSale computes the sale amount of the excess asset. The
// derivation halves the excess twice: a first-order pass at spot price, then
// exactly one refinement against the post-trade reserve estimate, followed by
// the same square-root price-impact correction as the single-asset case.
// The correction is applied once, not doubled: with amountOther = 0 the
// refinement is a no-op and the whole derivation collapses to AmountToSwap
// bit-for-bit, and the result stays exact under mirroring the two sides.
// The operation order is numerically delicate; keep it as written.
func rebalancingSale(amountSold, amountOther, reserveSold, reserveOther *big.Int) (*big.Int, error) {
	// First-order excess of the sold asset at the spot ratio.
	otherAsSold, err := Quote(amountOther, reserveOther, reserveSold)
	if err != nil {
		return nil, err
	}
	excess := new(big.Int).Sub(amountSold, otherAsSold)
	if excess.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	sale := new(big.Int).Div(excess, two)
	out, err := GetAmountOut(sale, reserveSold, reserveOther)
	if err != nil {
		return nil, err
	}

	// Refinement: re-value the other-side holdings at the estimated
	// post-trade reserves and halve the corrected excess again.
	postSold := new(big.Int).Add(reserveSold, sale)
	postOther := new(big.Int).Sub(reserveOther, out)
	otherAsSold, err = Quote(amountOther, postOther, postSold)
	if err != nil {
		return nil, err
	}
	excess = new(big.Int).Sub(amountSold, otherAsSold)
	if excess.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	sale = new(big.Int).Div(excess, two)
	out, err = GetAmountOut(sale, reserveSold, reserveOther)
	if err != nil {
		return nil, err
	}

	// Price-impact correction, as in AmountToSwap.
	postSold = new(big.Int).Add(reserveSold, sale)
	postOther = new(big.Int).Sub(reserveOther, out)
	denominator, err := Quote(sale, postSold, postOther)
	if err != nil {
		return nil, err
	}
	if denominator.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	correction := new(big.Int).Mul(sale, sale)
	correction.Mul(correction, out)
	correction.Div(correction, denominator)
	return excess.Sub(excess, Sqrt(correction)), nil
}
