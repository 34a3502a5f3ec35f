package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityZap/internal/amm"
)

// MinimumAmount is both the dust threshold for contribution amounts and the
// per-reserve liquidity floor, in base units.
const MinimumAmount = 1000

var minimumAmount = big.NewInt(MinimumAmount)

// PoolState is a point-in-time snapshot of a pair, read once per call.
type PoolState struct {
	Pair        common.Address
	Token0      common.Address
	Token1      common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
}

// SwapPlan is the balancing swap derived from a snapshot and a request. It is
// consumed immediately; plans are never persisted.
type SwapPlan struct {
	TokenIn    common.Address
	TokenOut   common.Address
	AmountIn   *big.Int
	AmountOut  *big.Int
	SellToken0 bool
}

// checkAmount enforces the dust threshold. Entry points call it before any
// pool read so dust requests never touch the backend.
func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Cmp(minimumAmount) < 0 {
		return ErrAmountTooLow
	}
	return nil
}

// checkContributions enforces the dust threshold on a two-sided
// contribution: either side may be zero, the sum must clear the threshold.
func checkContributions(amount0, amount1 *big.Int) error {
	if amount0 == nil || amount0.Sign() < 0 || amount1 == nil || amount1.Sign() < 0 {
		return ErrAmountTooLow
	}
	if new(big.Int).Add(amount0, amount1).Cmp(minimumAmount) < 0 {
		return ErrAmountTooLow
	}
	return nil
}

func validateReserves(st PoolState) error {
	if st.Reserve0 == nil || st.Reserve0.Cmp(minimumAmount) < 0 ||
		st.Reserve1 == nil || st.Reserve1.Cmp(minimumAmount) < 0 {
		return ErrReservesTooLow
	}
	return nil
}

// checkReverseRatio bounds the price impact of a single zap: the sold reserve
// must be at least maxZapReverseRatio times the swap input.
func checkReverseRatio(reserveSold, swapAmountIn, maxZapReverseRatio *big.Int) error {
	limit := new(big.Int).Mul(swapAmountIn, maxZapReverseRatio)
	if reserveSold.Cmp(limit) < 0 {
		return ErrQuantityHigherThanLimit
	}
	return nil
}

// PlanZapIn validates a single-asset zap-in request against a pool snapshot
// and derives its balancing swap. Estimation and execution share this path:
// both reject identically.
func PlanZapIn(st PoolState, tokenIn common.Address, amountIn, maxZapReverseRatio *big.Int) (SwapPlan, error) {
	if err := checkAmount(amountIn); err != nil {
		return SwapPlan{}, err
	}
	if tokenIn != st.Token0 && tokenIn != st.Token1 {
		return SwapPlan{}, ErrWrongTokens
	}
	if err := validateReserves(st); err != nil {
		return SwapPlan{}, err
	}

	sellToken0 := tokenIn == st.Token0
	reserveIn, reserveOut := st.Reserve0, st.Reserve1
	tokenOut := st.Token1
	if !sellToken0 {
		reserveIn, reserveOut = st.Reserve1, st.Reserve0
		tokenOut = st.Token0
	}

	swapIn, err := amm.AmountToSwap(amountIn, reserveIn, reserveOut)
	if err != nil {
		return SwapPlan{}, fmt.Errorf("amount to swap: %w", err)
	}
	if err := checkReverseRatio(reserveIn, swapIn, maxZapReverseRatio); err != nil {
		return SwapPlan{}, err
	}
	swapOut, err := amm.GetAmountOut(swapIn, reserveIn, reserveOut)
	if err != nil {
		return SwapPlan{}, fmt.Errorf("swap output: %w", err)
	}

	return SwapPlan{
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   swapIn,
		AmountOut:  swapOut,
		SellToken0: sellToken0,
	}, nil
}

// PlanRebalancing validates a two-asset rebalancing zap-in request and
// derives the sale of the excess side. Tokens must be supplied in the pair's
// canonical order. sellToken0 is the caller's claim about the trade
// direction and is enforced against live reserves.
func PlanRebalancing(st PoolState, token0, token1 common.Address, amount0, amount1, maxZapReverseRatio *big.Int, sellToken0 bool) (SwapPlan, error) {
	if token0 == token1 {
		return SwapPlan{}, ErrSameTokens
	}
	if token0 != st.Token0 || token1 != st.Token1 {
		return SwapPlan{}, ErrWrongTokens
	}
	if err := checkContributions(amount0, amount1); err != nil {
		return SwapPlan{}, err
	}
	if err := validateReserves(st); err != nil {
		return SwapPlan{}, err
	}

	swapIn, err := amm.AmountToSwapForRebalancing(amount0, amount1, st.Reserve0, st.Reserve1, sellToken0)
	if err != nil {
		return SwapPlan{}, err
	}

	tokenIn, tokenOut := st.Token0, st.Token1
	reserveIn, reserveOut := st.Reserve0, st.Reserve1
	if !sellToken0 {
		tokenIn, tokenOut = st.Token1, st.Token0
		reserveIn, reserveOut = st.Reserve1, st.Reserve0
	}
	if err := checkReverseRatio(reserveIn, swapIn, maxZapReverseRatio); err != nil {
		return SwapPlan{}, err
	}
	swapOut, err := amm.GetAmountOut(swapIn, reserveIn, reserveOut)
	if err != nil {
		return SwapPlan{}, fmt.Errorf("swap output: %w", err)
	}

	return SwapPlan{
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   swapIn,
		AmountOut:  swapOut,
		SellToken0: sellToken0,
	}, nil
}

// PlanZapOut validates a zap-out request. The balancing swap for a zap-out is
// only sized after the burn, so this covers the up-front checks shared with
// estimation.
func PlanZapOut(st PoolState, tokenOut common.Address, liquidity *big.Int) error {
	if err := checkAmount(liquidity); err != nil {
		return err
	}
	if tokenOut != st.Token0 && tokenOut != st.Token1 {
		return ErrWrongTokens
	}
	return validateReserves(st)
}

// snapshotPool reads the live pool state once. Both reserves and the share
// supply come from the same read; nothing is cached across calls.
func snapshotPool(ctx context.Context, pair Pair) (PoolState, error) {
	token0, err := pair.Token0(ctx)
	if err != nil {
		return PoolState{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := pair.Token1(ctx)
	if err != nil {
		return PoolState{}, fmt.Errorf("token1: %w", err)
	}
	reserve0, reserve1, _, err := pair.Reserves(ctx)
	if err != nil {
		return PoolState{}, fmt.Errorf("reserves: %w", err)
	}
	supply, err := pair.TotalSupply(ctx)
	if err != nil {
		return PoolState{}, fmt.Errorf("total supply: %w", err)
	}
	return PoolState{
		Pair:        pair.Address(),
		Token0:      token0,
		Token1:      token1,
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		TotalSupply: supply,
	}, nil
}
