// Package engine orchestrates zap operations: converting a single asset (or
// two unbalanced assets) into a liquidity-pool share in one atomic step, and
// the reverse. The balancing swap is computed in closed form by internal/amm;
// this package sequences validation, allowances, the swap, and the deposit or
// withdrawal against the collaborator interfaces, reverting everything on any
// failure.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	oneWei = big.NewInt(1)

	// maxApproval is granted to the router whenever the current allowance
	// drops below allowanceFloor, so repeated zaps do not re-approve.
	maxApproval    = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	allowanceFloor = new(big.Int).Lsh(big.NewInt(1), 128)
)

// Config carries the construction-time parameters of an Engine. The address
// fields are immutable afterwards; only the ratio can be updated, by the
// owner.
type Config struct {
	// Address is the account the engine holds intermediate funds under.
	Address common.Address

	// Owner may update the reverse ratio and recover stray assets.
	Owner common.Address

	// MaxZapReverseRatio caps the size of a zap's internal swap: the sold
	// reserve must be at least this many times the swap input.
	MaxZapReverseRatio *big.Int
}

// Engine executes zap-in and zap-out flows. A single in-flight-call guard
// rejects nested invocation of any entry point, closing reentrancy paths
// through asset-transfer callbacks.
type Engine struct {
	addr    common.Address
	owner   common.Address
	backend Backend
	logger  *zap.Logger

	mu                 sync.RWMutex
	maxZapReverseRatio *big.Int

	inFlight atomic.Bool
}

// NewEngine builds an Engine over the given backend.
func NewEngine(cfg Config, backend Backend, logger *zap.Logger) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	if cfg.MaxZapReverseRatio == nil || cfg.MaxZapReverseRatio.Sign() <= 0 {
		return nil, fmt.Errorf("max zap reverse ratio must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		addr:               cfg.Address,
		owner:              cfg.Owner,
		backend:            backend,
		logger:             logger,
		maxZapReverseRatio: new(big.Int).Set(cfg.MaxZapReverseRatio),
	}, nil
}

// Address returns the account the engine operates as.
func (e *Engine) Address() common.Address {
	return e.addr
}

// MaxZapReverseRatio returns the current risk-ceiling ratio.
func (e *Engine) MaxZapReverseRatio() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.maxZapReverseRatio)
}

// UpdateMaxZapReverseRatio replaces the risk-ceiling ratio. Owner only.
func (e *Engine) UpdateMaxZapReverseRatio(caller common.Address, ratio *big.Int) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	if ratio == nil || ratio.Sign() <= 0 {
		return fmt.Errorf("max zap reverse ratio must be positive")
	}
	e.mu.Lock()
	e.maxZapReverseRatio = new(big.Int).Set(ratio)
	e.mu.Unlock()
	e.logger.Info("max zap reverse ratio updated", zap.String("ratio", ratio.String()))
	return nil
}

// run executes fn under the in-flight guard with all-or-nothing semantics:
// on any error the backend is reverted to the snapshot taken at entry.
func (e *Engine) run(fn func() error) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	defer e.inFlight.Store(false)

	snap := e.backend.Snapshot()
	if err := fn(); err != nil {
		e.backend.RevertToSnapshot(snap)
		return err
	}
	return nil
}

// ZapInResult records a completed zap-in: contributions in pair order, the
// internal balancing swap, and the pool shares minted to the caller.
type ZapInResult struct {
	Pair            common.Address
	Token0          common.Address
	Token1          common.Address
	Amount0In       *big.Int
	Amount1In       *big.Int
	SwapTokenIn     common.Address
	SwapAmountIn    *big.Int
	SwapAmountOut   *big.Int
	LiquidityMinted *big.Int
}

// ZapOutResult records a completed zap-out.
type ZapOutResult struct {
	Pair          common.Address
	TokenOut      common.Address
	LiquidityIn   *big.Int
	SwapAmountIn  *big.Int
	SwapAmountOut *big.Int
	AmountOut     *big.Int
	Native        bool
}

// ZapInToken converts amountIn of a single pair asset, pulled from the
// caller, into pool shares minted to the caller. swapAmountOutMin bounds the
// internal swap's output; the deposit minimums are left at one wei since
// slippage is already bounded by the swap.
func (e *Engine) ZapInToken(ctx context.Context, caller, tokenIn common.Address, amountIn *big.Int, pool common.Address, swapAmountOutMin *big.Int) (ZapInResult, error) {
	var res ZapInResult
	// Dust is rejected here, before any pool read.
	if err := checkAmount(amountIn); err != nil {
		return res, err
	}
	err := e.run(func() error {
		pair, err := e.backend.Pair(pool)
		if err != nil {
			return err
		}
		st, err := snapshotPool(ctx, pair)
		if err != nil {
			return err
		}
		plan, err := PlanZapIn(st, tokenIn, amountIn, e.MaxZapReverseRatio())
		if err != nil {
			return err
		}

		tok, err := e.backend.Token(tokenIn)
		if err != nil {
			return err
		}
		if err := tok.TransferFrom(ctx, e.addr, caller, e.addr, amountIn); err != nil {
			return fmt.Errorf("pull %s: %w", tokenIn.Hex(), err)
		}

		res, err = e.executeZapIn(ctx, caller, st, plan, amountIn, swapAmountOutMin)
		return err
	})
	return res, err
}

// ZapInNative is ZapInToken for the chain's native coin: the value is pulled
// from the caller, wrapped 1:1, and zapped into a pool containing the
// wrapped-native token.
func (e *Engine) ZapInNative(ctx context.Context, caller common.Address, value *big.Int, pool common.Address, swapAmountOutMin *big.Int) (ZapInResult, error) {
	var res ZapInResult
	if err := checkAmount(value); err != nil {
		return res, err
	}
	err := e.run(func() error {
		pair, err := e.backend.Pair(pool)
		if err != nil {
			return err
		}
		st, err := snapshotPool(ctx, pair)
		if err != nil {
			return err
		}
		wrapped := e.backend.WrappedNative()
		plan, err := PlanZapIn(st, wrapped.Address(), value, e.MaxZapReverseRatio())
		if err != nil {
			return err
		}

		if err := e.wrapFromCaller(ctx, caller, value); err != nil {
			return err
		}

		res, err = e.executeZapIn(ctx, caller, st, plan, value, swapAmountOutMin)
		return err
	})
	return res, err
}

// ZapInRebalancing converts an unbalanced pair of contributions into pool
// shares. token0/token1 must be in the pair's canonical order. sellToken0 is
// the caller's view of the trade direction; swapAmountInMax caps the planned
// sale so a stale estimate cannot commit the caller to a larger swap.
func (e *Engine) ZapInRebalancing(ctx context.Context, caller, token0, token1 common.Address, amount0, amount1 *big.Int, pool common.Address, swapAmountOutMin, swapAmountInMax *big.Int, sellToken0 bool) (ZapInResult, error) {
	var res ZapInResult
	if err := checkContributions(amount0, amount1); err != nil {
		return res, err
	}
	err := e.run(func() error {
		pair, err := e.backend.Pair(pool)
		if err != nil {
			return err
		}
		st, err := snapshotPool(ctx, pair)
		if err != nil {
			return err
		}
		plan, err := PlanRebalancing(st, token0, token1, amount0, amount1, e.MaxZapReverseRatio(), sellToken0)
		if err != nil {
			return err
		}
		if swapAmountInMax != nil && plan.AmountIn.Cmp(swapAmountInMax) > 0 {
			return ErrAmountToSwapTooHigh
		}

		if err := e.pullToken(ctx, caller, token0, amount0); err != nil {
			return err
		}
		if err := e.pullToken(ctx, caller, token1, amount1); err != nil {
			return err
		}

		res, err = e.executeRebalancing(ctx, caller, st, plan, amount0, amount1, swapAmountOutMin)
		return err
	})
	return res, err
}

// ZapInNativeRebalancing is ZapInRebalancing with the native coin on one
// side. sellNative is the caller's claim that the native side is the one in
// excess.
func (e *Engine) ZapInNativeRebalancing(ctx context.Context, caller common.Address, value *big.Int, token common.Address, tokenAmount *big.Int, pool common.Address, swapAmountOutMin, swapAmountInMax *big.Int, sellNative bool) (ZapInResult, error) {
	var res ZapInResult
	if err := checkContributions(value, tokenAmount); err != nil {
		return res, err
	}
	err := e.run(func() error {
		pair, err := e.backend.Pair(pool)
		if err != nil {
			return err
		}
		st, err := snapshotPool(ctx, pair)
		if err != nil {
			return err
		}

		wrapped := e.backend.WrappedNative().Address()
		var amount0, amount1 *big.Int
		var sellToken0 bool
		switch wrapped {
		case st.Token0:
			amount0, amount1 = value, tokenAmount
			sellToken0 = sellNative
		case st.Token1:
			amount0, amount1 = tokenAmount, value
			sellToken0 = !sellNative
		default:
			return ErrWrongTokens
		}

		plan, err := PlanRebalancing(st, st.Token0, st.Token1, amount0, amount1, e.MaxZapReverseRatio(), sellToken0)
		if err != nil {
			return err
		}
		if swapAmountInMax != nil && plan.AmountIn.Cmp(swapAmountInMax) > 0 {
			return ErrAmountToSwapTooHigh
		}

		if err := e.wrapFromCaller(ctx, caller, value); err != nil {
			return err
		}
		if err := e.pullToken(ctx, caller, token, tokenAmount); err != nil {
			return err
		}

		res, err = e.executeRebalancing(ctx, caller, st, plan, amount0, amount1, swapAmountOutMin)
		return err
	})
	return res, err
}

// ZapOutToken burns liquidity pool shares pulled from the caller into the
// two underlying assets, swaps the unwanted side fully into tokenOut, and
// transfers the engine's entire resulting tokenOut balance to the caller.
func (e *Engine) ZapOutToken(ctx context.Context, caller common.Address, pool, tokenOut common.Address, liquidity, swapAmountOutMin *big.Int) (ZapOutResult, error) {
	var res ZapOutResult
	if err := checkAmount(liquidity); err != nil {
		return res, err
	}
	err := e.run(func() error {
		var err error
		res, err = e.executeZapOut(ctx, caller, pool, tokenOut, liquidity, swapAmountOutMin, false)
		return err
	})
	return res, err
}

// ZapOutNative is ZapOutToken targeting the wrapped-native side: the result
// is unwrapped and forwarded to the caller as native value.
func (e *Engine) ZapOutNative(ctx context.Context, caller common.Address, pool common.Address, liquidity, swapAmountOutMin *big.Int) (ZapOutResult, error) {
	var res ZapOutResult
	if err := checkAmount(liquidity); err != nil {
		return res, err
	}
	err := e.run(func() error {
		var err error
		res, err = e.executeZapOut(ctx, caller, pool, e.backend.WrappedNative().Address(), liquidity, swapAmountOutMin, true)
		return err
	})
	return res, err
}

// RecoverToken transfers the engine's full balance of a token, typically
// rounding dust or assets sent here by mistake, to the given account. Owner
// only.
func (e *Engine) RecoverToken(ctx context.Context, caller, token, to common.Address) (*big.Int, error) {
	if caller != e.owner {
		return nil, ErrNotOwner
	}
	var amount *big.Int
	err := e.run(func() error {
		tok, err := e.backend.Token(token)
		if err != nil {
			return err
		}
		amount, err = tok.BalanceOf(ctx, e.addr)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return nil
		}
		return tok.Transfer(ctx, e.addr, to, amount)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("token recovered", zap.String("token", token.Hex()), zap.String("amount", amount.String()))
	return amount, nil
}

// RecoverNative transfers the engine's full native balance to the given
// account. Owner only.
func (e *Engine) RecoverNative(ctx context.Context, caller, to common.Address) (*big.Int, error) {
	if caller != e.owner {
		return nil, ErrNotOwner
	}
	var amount *big.Int
	err := e.run(func() error {
		native := e.backend.Native()
		var err error
		amount, err = native.BalanceOf(ctx, e.addr)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return nil
		}
		return native.Transfer(ctx, e.addr, to, amount)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("native recovered", zap.String("amount", amount.String()))
	return amount, nil
}

func (e *Engine) pullToken(ctx context.Context, caller, token common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	tok, err := e.backend.Token(token)
	if err != nil {
		return err
	}
	if err := tok.TransferFrom(ctx, e.addr, caller, e.addr, amount); err != nil {
		return fmt.Errorf("pull %s: %w", token.Hex(), err)
	}
	return nil
}

func (e *Engine) wrapFromCaller(ctx context.Context, caller common.Address, value *big.Int) error {
	if err := e.backend.Native().Transfer(ctx, caller, e.addr, value); err != nil {
		return fmt.Errorf("pull native: %w", err)
	}
	if err := e.backend.WrappedNative().Deposit(ctx, e.addr, value); err != nil {
		return fmt.Errorf("wrap native: %w", err)
	}
	return nil
}

// ensureRouterAllowance tops the router's allowance up to maxApproval, but
// only when it has fallen below allowanceFloor.
func (e *Engine) ensureRouterAllowance(ctx context.Context, tok Token) error {
	router := e.backend.Router().Address()
	current, err := tok.Allowance(ctx, e.addr, router)
	if err != nil {
		return fmt.Errorf("allowance %s: %w", tok.Address().Hex(), err)
	}
	if current.Cmp(allowanceFloor) >= 0 {
		return nil
	}
	if err := tok.Approve(ctx, e.addr, router, maxApproval); err != nil {
		return fmt.Errorf("approve %s: %w", tok.Address().Hex(), err)
	}
	return nil
}

// executeZapIn runs the swap+deposit tail of a single-asset zap-in. The
// engine already holds amountIn of plan.TokenIn.
func (e *Engine) executeZapIn(ctx context.Context, caller common.Address, st PoolState, plan SwapPlan, amountIn, swapAmountOutMin *big.Int) (ZapInResult, error) {
	router := e.backend.Router()
	tokIn, err := e.backend.Token(plan.TokenIn)
	if err != nil {
		return ZapInResult{}, err
	}
	tokOut, err := e.backend.Token(plan.TokenOut)
	if err != nil {
		return ZapInResult{}, err
	}

	if err := e.ensureRouterAllowance(ctx, tokIn); err != nil {
		return ZapInResult{}, err
	}
	deadline := e.backend.Now()
	amounts, err := router.SwapExactTokensForTokens(ctx, e.addr, plan.AmountIn, swapAmountOutMin,
		[]common.Address{plan.TokenIn, plan.TokenOut}, e.addr, deadline)
	if err != nil {
		return ZapInResult{}, fmt.Errorf("swap: %w", err)
	}
	swapOut := amounts[len(amounts)-1]

	if err := e.ensureRouterAllowance(ctx, tokOut); err != nil {
		return ZapInResult{}, err
	}
	remainder := new(big.Int).Sub(amountIn, plan.AmountIn)
	_, _, liquidity, err := router.AddLiquidity(ctx, e.addr, plan.TokenIn, plan.TokenOut,
		remainder, swapOut, oneWei, oneWei, caller, deadline)
	if err != nil {
		return ZapInResult{}, fmt.Errorf("add liquidity: %w", err)
	}

	res := ZapInResult{
		Pair:            st.Pair,
		Token0:          st.Token0,
		Token1:          st.Token1,
		SwapTokenIn:     plan.TokenIn,
		SwapAmountIn:    plan.AmountIn,
		SwapAmountOut:   swapOut,
		LiquidityMinted: liquidity,
	}
	if plan.SellToken0 {
		res.Amount0In, res.Amount1In = amountIn, big.NewInt(0)
	} else {
		res.Amount0In, res.Amount1In = big.NewInt(0), amountIn
	}
	e.logger.Info("zap in",
		zap.String("caller", caller.Hex()),
		zap.String("pair", st.Pair.Hex()),
		zap.String("token_in", plan.TokenIn.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("swap_amount_in", plan.AmountIn.String()),
		zap.String("liquidity", liquidity.String()),
	)
	return res, nil
}

// executeRebalancing runs the swap+deposit tail of a rebalancing zap-in. The
// engine already holds amount0 and amount1 in pair order.
func (e *Engine) executeRebalancing(ctx context.Context, caller common.Address, st PoolState, plan SwapPlan, amount0, amount1, swapAmountOutMin *big.Int) (ZapInResult, error) {
	router := e.backend.Router()
	tokIn, err := e.backend.Token(plan.TokenIn)
	if err != nil {
		return ZapInResult{}, err
	}
	tokOut, err := e.backend.Token(plan.TokenOut)
	if err != nil {
		return ZapInResult{}, err
	}

	if err := e.ensureRouterAllowance(ctx, tokIn); err != nil {
		return ZapInResult{}, err
	}
	deadline := e.backend.Now()
	amounts, err := router.SwapExactTokensForTokens(ctx, e.addr, plan.AmountIn, swapAmountOutMin,
		[]common.Address{plan.TokenIn, plan.TokenOut}, e.addr, deadline)
	if err != nil {
		return ZapInResult{}, fmt.Errorf("swap: %w", err)
	}
	swapOut := amounts[len(amounts)-1]

	contrib0 := new(big.Int).Set(amount0)
	contrib1 := new(big.Int).Set(amount1)
	if plan.SellToken0 {
		contrib0.Sub(contrib0, plan.AmountIn)
		contrib1.Add(contrib1, swapOut)
	} else {
		contrib1.Sub(contrib1, plan.AmountIn)
		contrib0.Add(contrib0, swapOut)
	}

	if err := e.ensureRouterAllowance(ctx, tokOut); err != nil {
		return ZapInResult{}, err
	}
	_, _, liquidity, err := router.AddLiquidity(ctx, e.addr, st.Token0, st.Token1,
		contrib0, contrib1, oneWei, oneWei, caller, deadline)
	if err != nil {
		return ZapInResult{}, fmt.Errorf("add liquidity: %w", err)
	}

	res := ZapInResult{
		Pair:            st.Pair,
		Token0:          st.Token0,
		Token1:          st.Token1,
		Amount0In:       amount0,
		Amount1In:       amount1,
		SwapTokenIn:     plan.TokenIn,
		SwapAmountIn:    plan.AmountIn,
		SwapAmountOut:   swapOut,
		LiquidityMinted: liquidity,
	}
	e.logger.Info("zap in rebalancing",
		zap.String("caller", caller.Hex()),
		zap.String("pair", st.Pair.Hex()),
		zap.String("amount0_in", amount0.String()),
		zap.String("amount1_in", amount1.String()),
		zap.String("swap_token_in", plan.TokenIn.Hex()),
		zap.String("swap_amount_in", plan.AmountIn.String()),
		zap.String("liquidity", liquidity.String()),
	)
	return res, nil
}

func (e *Engine) executeZapOut(ctx context.Context, caller common.Address, pool, tokenOut common.Address, liquidity, swapAmountOutMin *big.Int, native bool) (ZapOutResult, error) {
	pair, err := e.backend.Pair(pool)
	if err != nil {
		return ZapOutResult{}, err
	}
	st, err := snapshotPool(ctx, pair)
	if err != nil {
		return ZapOutResult{}, err
	}
	if err := PlanZapOut(st, tokenOut, liquidity); err != nil {
		return ZapOutResult{}, err
	}

	// Pool shares are themselves a fungible asset; move the caller's shares
	// straight into the pair and burn them to this engine.
	lp, err := e.backend.Token(pool)
	if err != nil {
		return ZapOutResult{}, err
	}
	if err := lp.TransferFrom(ctx, e.addr, caller, pool, liquidity); err != nil {
		return ZapOutResult{}, fmt.Errorf("pull shares: %w", err)
	}
	amount0, amount1, err := pair.Burn(ctx, e.addr)
	if err != nil {
		return ZapOutResult{}, fmt.Errorf("burn: %w", err)
	}

	tokenIn := st.Token1
	swapIn := amount1
	postReserveIn := new(big.Int).Sub(st.Reserve1, amount1)
	if tokenOut == st.Token1 {
		tokenIn = st.Token0
		swapIn = amount0
		postReserveIn = new(big.Int).Sub(st.Reserve0, amount0)
	}
	if err := checkReverseRatio(postReserveIn, swapIn, e.MaxZapReverseRatio()); err != nil {
		return ZapOutResult{}, err
	}

	tokIn, err := e.backend.Token(tokenIn)
	if err != nil {
		return ZapOutResult{}, err
	}
	if err := e.ensureRouterAllowance(ctx, tokIn); err != nil {
		return ZapOutResult{}, err
	}
	deadline := e.backend.Now()
	amounts, err := e.backend.Router().SwapExactTokensForTokens(ctx, e.addr, swapIn, swapAmountOutMin,
		[]common.Address{tokenIn, tokenOut}, e.addr, deadline)
	if err != nil {
		return ZapOutResult{}, fmt.Errorf("swap: %w", err)
	}
	swapOut := amounts[len(amounts)-1]

	// The caller receives the engine's entire balance of the desired asset,
	// including any dust left by earlier operations.
	tokOut, err := e.backend.Token(tokenOut)
	if err != nil {
		return ZapOutResult{}, err
	}
	balance, err := tokOut.BalanceOf(ctx, e.addr)
	if err != nil {
		return ZapOutResult{}, err
	}
	if native {
		if err := e.backend.WrappedNative().Withdraw(ctx, e.addr, balance); err != nil {
			return ZapOutResult{}, fmt.Errorf("unwrap: %w", err)
		}
		if err := e.backend.Native().Transfer(ctx, e.addr, caller, balance); err != nil {
			return ZapOutResult{}, fmt.Errorf("native transfer: %w", err)
		}
	} else {
		if err := tokOut.Transfer(ctx, e.addr, caller, balance); err != nil {
			return ZapOutResult{}, fmt.Errorf("transfer: %w", err)
		}
	}

	e.logger.Info("zap out",
		zap.String("caller", caller.Hex()),
		zap.String("pair", st.Pair.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.String("liquidity_in", liquidity.String()),
		zap.String("amount_out", balance.String()),
		zap.Bool("native", native),
	)
	return ZapOutResult{
		Pair:          st.Pair,
		TokenOut:      tokenOut,
		LiquidityIn:   liquidity,
		SwapAmountIn:  swapIn,
		SwapAmountOut: swapOut,
		AmountOut:     balance,
		Native:        native,
	}, nil
}
