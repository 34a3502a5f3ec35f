package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityZap/internal/amm"
)

var ErrInvalidPath = errors.New("ledger: invalid swap path")

// pairFor resolves the pair for two tokens in either order and reports
// whether tokenA is the pair's token0.
func (l *Ledger) pairFor(tokenA, tokenB common.Address) (common.Address, *pairState, bool, error) {
	if addr, ok := l.pairByTokens[pairKey{tokenA, tokenB}]; ok {
		return addr, l.pairs[addr], true, nil
	}
	if addr, ok := l.pairByTokens[pairKey{tokenB, tokenA}]; ok {
		return addr, l.pairs[addr], false, nil
	}
	return common.Address{}, nil, false, fmt.Errorf("%w: %s/%s", ErrUnknownPair, tokenA.Hex(), tokenB.Hex())
}

func (l *Ledger) checkDeadline(deadline uint64) error {
	if deadline < l.now {
		return ErrExpiredDeadline
	}
	return nil
}

// routerSwap sells an exact input along a single-hop path. The input is
// pulled from `from` against the router's allowance.
func (l *Ledger) routerSwap(from common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline uint64) ([]*big.Int, error) {
	if err := l.checkDeadline(deadline); err != nil {
		return nil, err
	}
	if len(path) != 2 {
		return nil, fmt.Errorf("%w: %d hops", ErrInvalidPath, len(path))
	}

	pairAddr, p, aIsToken0, err := l.pairFor(path[0], path[1])
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut := p.reserve0, p.reserve1
	if !aIsToken0 {
		reserveIn, reserveOut = p.reserve1, p.reserve0
	}
	amountOut, err := amm.GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountOutMin != nil && amountOut.Cmp(amountOutMin) < 0 {
		return nil, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientOutputAmount, amountOut, amountOutMin)
	}

	if err := l.transferFrom(path[0], l.router, from, pairAddr, amountIn); err != nil {
		return nil, err
	}
	amount0Out, amount1Out := new(big.Int), amountOut
	if !aIsToken0 {
		amount0Out, amount1Out = amountOut, new(big.Int)
	}
	if err := l.pairSwap(pairAddr, amount0Out, amount1Out, to); err != nil {
		return nil, err
	}
	return []*big.Int{new(big.Int).Set(amountIn), amountOut}, nil
}

// routerAddLiquidity deposits as much of both desired amounts as the current
// reserve ratio admits and mints the pool shares to `to`.
func (l *Ledger) routerAddLiquidity(from, tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int, to common.Address, deadline uint64) (*big.Int, *big.Int, *big.Int, error) {
	if err := l.checkDeadline(deadline); err != nil {
		return nil, nil, nil, err
	}
	pairAddr, p, aIsToken0, err := l.pairFor(tokenA, tokenB)
	if err != nil {
		return nil, nil, nil, err
	}
	reserveA, reserveB := p.reserve0, p.reserve1
	if !aIsToken0 {
		reserveA, reserveB = p.reserve1, p.reserve0
	}

	amountA, amountB := amountADesired, amountBDesired
	if reserveA.Sign() != 0 || reserveB.Sign() != 0 {
		bOptimal, err := amm.Quote(amountADesired, reserveA, reserveB)
		if err != nil {
			return nil, nil, nil, err
		}
		if bOptimal.Cmp(amountBDesired) <= 0 {
			if amountBMin != nil && bOptimal.Cmp(amountBMin) < 0 {
				return nil, nil, nil, fmt.Errorf("%w: token B", ErrInsufficientInputAmount)
			}
			amountB = bOptimal
		} else {
			aOptimal, err := amm.Quote(amountBDesired, reserveB, reserveA)
			if err != nil {
				return nil, nil, nil, err
			}
			if aOptimal.Cmp(amountADesired) > 0 {
				return nil, nil, nil, fmt.Errorf("%w: token A", ErrInsufficientInputAmount)
			}
			if amountAMin != nil && aOptimal.Cmp(amountAMin) < 0 {
				return nil, nil, nil, fmt.Errorf("%w: token A", ErrInsufficientInputAmount)
			}
			amountA = aOptimal
		}
	}

	if err := l.transferFrom(tokenA, l.router, from, pairAddr, amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := l.transferFrom(tokenB, l.router, from, pairAddr, amountB); err != nil {
		return nil, nil, nil, err
	}
	liquidity, err := l.pairMint(pairAddr, to)
	if err != nil {
		return nil, nil, nil, err
	}
	return new(big.Int).Set(amountA), new(big.Int).Set(amountB), liquidity, nil
}
