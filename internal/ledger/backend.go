package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityZap/internal/amm"
	"liquidityZap/internal/engine"
)

// Backend adapts a Ledger to the engine's collaborator interfaces.
type Backend struct {
	l *Ledger
}

// NewBackend wraps a ledger for the zap engine.
func NewBackend(l *Ledger) *Backend {
	return &Backend{l: l}
}

func (b *Backend) Router() engine.Router {
	return routerView{l: b.l}
}

func (b *Backend) Pair(addr common.Address) (engine.Pair, error) {
	if _, ok := b.l.pairs[addr]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, addr.Hex())
	}
	return pairView{l: b.l, addr: addr}, nil
}

func (b *Backend) Token(addr common.Address) (engine.Token, error) {
	if _, ok := b.l.tokens[addr]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return tokenView{l: b.l, addr: addr}, nil
}

func (b *Backend) WrappedNative() engine.WrappedNative {
	return wnativeView{tokenView{l: b.l, addr: b.l.wnative}}
}

func (b *Backend) Native() engine.Native {
	return nativeView{l: b.l}
}

func (b *Backend) Snapshot() int {
	return b.l.Snapshot()
}

func (b *Backend) RevertToSnapshot(id int) {
	b.l.RevertToSnapshot(id)
}

func (b *Backend) Now() uint64 {
	return b.l.now
}

type tokenView struct {
	l    *Ledger
	addr common.Address
}

func (t tokenView) Address() common.Address {
	return t.addr
}

func (t tokenView) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	return t.l.BalanceOf(t.addr, owner), nil
}

func (t tokenView) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	return new(big.Int).Set(t.l.allowance(t.addr, owner, spender)), nil
}

func (t tokenView) Approve(_ context.Context, owner, spender common.Address, value *big.Int) error {
	t.l.approve(t.addr, owner, spender, value)
	return nil
}

func (t tokenView) Transfer(_ context.Context, from, to common.Address, value *big.Int) error {
	return t.l.transfer(t.addr, from, to, value)
}

func (t tokenView) TransferFrom(_ context.Context, spender, from, to common.Address, value *big.Int) error {
	return t.l.transferFrom(t.addr, spender, from, to, value)
}

type wnativeView struct {
	tokenView
}

func (w wnativeView) Deposit(_ context.Context, from common.Address, value *big.Int) error {
	if err := w.l.transferNative(from, w.addr, value); err != nil {
		return err
	}
	w.l.mint(w.addr, from, value)
	return nil
}

func (w wnativeView) Withdraw(_ context.Context, from common.Address, value *big.Int) error {
	if err := w.l.burn(w.addr, from, value); err != nil {
		return err
	}
	return w.l.transferNative(w.addr, from, value)
}

type nativeView struct {
	l *Ledger
}

func (n nativeView) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	return n.l.NativeBalanceOf(owner), nil
}

func (n nativeView) Transfer(_ context.Context, from, to common.Address, value *big.Int) error {
	return n.l.transferNative(from, to, value)
}

type pairView struct {
	l    *Ledger
	addr common.Address
}

func (p pairView) Address() common.Address {
	return p.addr
}

func (p pairView) Token0(_ context.Context) (common.Address, error) {
	return p.l.pairs[p.addr].token0, nil
}

func (p pairView) Token1(_ context.Context) (common.Address, error) {
	return p.l.pairs[p.addr].token1, nil
}

func (p pairView) Reserves(_ context.Context) (*big.Int, *big.Int, uint64, error) {
	st := p.l.pairs[p.addr]
	return new(big.Int).Set(st.reserve0), new(big.Int).Set(st.reserve1), p.l.now, nil
}

func (p pairView) TotalSupply(_ context.Context) (*big.Int, error) {
	return p.l.TotalSupply(p.addr), nil
}

func (p pairView) Burn(_ context.Context, to common.Address) (*big.Int, *big.Int, error) {
	return p.l.pairBurn(p.addr, to)
}

type routerView struct {
	l *Ledger
}

func (r routerView) Address() common.Address {
	return r.l.router
}

func (r routerView) GetAmountOut(_ context.Context, amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	return amm.GetAmountOut(amountIn, reserveIn, reserveOut)
}

func (r routerView) Quote(_ context.Context, amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	return amm.Quote(amountA, reserveA, reserveB)
}

func (r routerView) SwapExactTokensForTokens(_ context.Context, from common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline uint64) ([]*big.Int, error) {
	return r.l.routerSwap(from, amountIn, amountOutMin, path, to, deadline)
}

func (r routerView) AddLiquidity(_ context.Context, from, tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int, to common.Address, deadline uint64) (*big.Int, *big.Int, *big.Int, error) {
	return r.l.routerAddLiquidity(from, tokenA, tokenB, amountADesired, amountBDesired, amountAMin, amountBMin, to, deadline)
}
