package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EstimateZapInSwap previews the balancing swap a single-asset zap-in would
// perform against current reserves, without moving funds. It shares the
// validation path with execution, so a request that would be rejected there
// is rejected here with the same reason. The output side is quoted through
// the router.
func (e *Engine) EstimateZapInSwap(ctx context.Context, pool, tokenIn common.Address, amountIn *big.Int) (SwapPlan, error) {
	if err := checkAmount(amountIn); err != nil {
		return SwapPlan{}, err
	}
	pair, err := e.backend.Pair(pool)
	if err != nil {
		return SwapPlan{}, err
	}
	st, err := snapshotPool(ctx, pair)
	if err != nil {
		return SwapPlan{}, err
	}
	plan, err := PlanZapIn(st, tokenIn, amountIn, e.MaxZapReverseRatio())
	if err != nil {
		return SwapPlan{}, err
	}
	return e.quotePlan(ctx, st, plan)
}

// EstimateZapInRebalancingSwap previews the sale a two-asset rebalancing
// zap-in would perform. Tokens must be in the pair's canonical order;
// sellToken0 is validated against current reserves exactly as in execution.
func (e *Engine) EstimateZapInRebalancingSwap(ctx context.Context, pool, token0, token1 common.Address, amount0, amount1 *big.Int, sellToken0 bool) (SwapPlan, error) {
	if err := checkContributions(amount0, amount1); err != nil {
		return SwapPlan{}, err
	}
	pair, err := e.backend.Pair(pool)
	if err != nil {
		return SwapPlan{}, err
	}
	st, err := snapshotPool(ctx, pair)
	if err != nil {
		return SwapPlan{}, err
	}
	plan, err := PlanRebalancing(st, token0, token1, amount0, amount1, e.MaxZapReverseRatio(), sellToken0)
	if err != nil {
		return SwapPlan{}, err
	}
	return e.quotePlan(ctx, st, plan)
}

func (e *Engine) quotePlan(ctx context.Context, st PoolState, plan SwapPlan) (SwapPlan, error) {
	reserveIn, reserveOut := st.Reserve0, st.Reserve1
	if !plan.SellToken0 {
		reserveIn, reserveOut = st.Reserve1, st.Reserve0
	}
	out, err := e.backend.Router().GetAmountOut(ctx, plan.AmountIn, reserveIn, reserveOut)
	if err != nil {
		return SwapPlan{}, fmt.Errorf("router quote: %w", err)
	}
	plan.AmountOut = out
	return plan, nil
}
