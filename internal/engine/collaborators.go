package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pair is the two-asset liquidity pool collaborator. Reserves and supply are
// read live; the engine never caches them across calls.
type Pair interface {
	Address() common.Address
	Token0(ctx context.Context) (common.Address, error)
	Token1(ctx context.Context) (common.Address, error)
	Reserves(ctx context.Context) (reserve0, reserve1 *big.Int, blockTimestampLast uint64, err error)
	TotalSupply(ctx context.Context) (*big.Int, error)

	// Burn destroys the pool shares held by the pair itself and credits the
	// underlying assets to `to`.
	Burn(ctx context.Context, to common.Address) (amount0, amount1 *big.Int, err error)
}

// Router executes swaps and deposits given already-computed amounts. It
// applies its own fee and slippage checks; the engine propagates its errors
// unchanged.
type Router interface {
	Address() common.Address
	GetAmountOut(ctx context.Context, amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error)
	Quote(ctx context.Context, amountA, reserveA, reserveB *big.Int) (*big.Int, error)
	SwapExactTokensForTokens(ctx context.Context, from common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline uint64) ([]*big.Int, error)
	AddLiquidity(ctx context.Context, from common.Address, tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int, to common.Address, deadline uint64) (amountA, amountB, liquidity *big.Int, err error)
}

// Token is the fungible-asset collaborator. Mutating calls name the acting
// account explicitly; every call can fail and must be checked.
type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, owner, spender common.Address, value *big.Int) error
	Transfer(ctx context.Context, from, to common.Address, value *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, value *big.Int) error
}

// WrappedNative is the 1:1 wrapper token for the chain's native coin.
type WrappedNative interface {
	Token
	Deposit(ctx context.Context, from common.Address, value *big.Int) error
	Withdraw(ctx context.Context, from common.Address, value *big.Int) error
}

// Native moves the chain's native coin between accounts.
type Native interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, value *big.Int) error
}

// Backend bundles the collaborators a zap call touches and provides the
// all-or-nothing execution primitive: a zap either completes every step or is
// reverted to the snapshot taken at entry.
type Backend interface {
	Router() Router
	Pair(addr common.Address) (Pair, error)
	Token(addr common.Address) (Token, error)
	WrappedNative() WrappedNative
	Native() Native

	Snapshot() int
	RevertToSnapshot(id int)

	// Now is the ledger clock, used as the swap/deposit deadline: operations
	// must execute within the same step they are issued from.
	Now() uint64
}
