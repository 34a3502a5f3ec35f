package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenA  = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB  = common.HexToAddress("0x000000000000000000000000000000000000000b")
	pairAB  = common.HexToAddress("0x00000000000000000000000000000000000000ab")
	router  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	wrapped = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	l.SetRouter(router)
	l.CreateToken(tokenA, "TKA")
	l.CreateToken(tokenB, "TKB")
	l.CreateWrappedNative(wrapped, "WNAT")
	if err := l.CreatePair(pairAB, tokenA, tokenB); err != nil {
		t.Fatalf("create pair: %v", err)
	}
	return l
}

func TestSeedPairBurnsMinimumLiquidity(t *testing.T) {
	l := newTestLedger(t)
	amount := big.NewInt(1_000_000)

	liquidity, err := l.SeedPair(pairAB, alice, amount, amount)
	if err != nil {
		t.Fatalf("seed pair: %v", err)
	}
	if liquidity.Int64() != 999_000 {
		t.Fatalf("provider liquidity: got %s want 999000", liquidity)
	}
	if got := l.BalanceOf(pairAB, zeroAddress); got.Int64() != MinimumLiquidity {
		t.Fatalf("locked liquidity: got %s want %d", got, MinimumLiquidity)
	}
	if got := l.TotalSupply(pairAB); got.Int64() != 1_000_000 {
		t.Fatalf("share supply: got %s want 1000000", got)
	}
}

func TestRouterSwapMovesReserves(t *testing.T) {
	l := newTestLedger(t)
	amount := big.NewInt(1_000_000)
	if _, err := l.SeedPair(pairAB, alice, amount, amount); err != nil {
		t.Fatalf("seed pair: %v", err)
	}

	if err := l.MintToken(tokenA, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	l.approve(tokenA, alice, router, big.NewInt(1000))

	amounts, err := l.routerSwap(alice, big.NewInt(1000), big.NewInt(1),
		[]common.Address{tokenA, tokenB}, alice, l.Now())
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if amounts[1].Int64() != 997 {
		t.Fatalf("swap output: got %s want 997", amounts[1])
	}
	if got := l.BalanceOf(tokenB, alice); got.Int64() != 997 {
		t.Fatalf("trader balance: got %s want 997", got)
	}

	p := l.pairs[pairAB]
	if p.reserve0.Int64() != 1_001_000 || p.reserve1.Int64() != 999_003 {
		t.Fatalf("reserves after swap: got %s/%s", p.reserve0, p.reserve1)
	}
}

func TestRouterSwapRejectsExpiredDeadline(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.SeedPair(pairAB, alice, big.NewInt(1_000_000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed pair: %v", err)
	}
	l.SetNow(100)

	_, err := l.routerSwap(alice, big.NewInt(1000), nil,
		[]common.Address{tokenA, tokenB}, alice, 99)
	if !errors.Is(err, ErrExpiredDeadline) {
		t.Fatalf("expected ErrExpiredDeadline, got %v", err)
	}
}

func TestTransferFromRequiresAllowance(t *testing.T) {
	l := newTestLedger(t)
	if err := l.MintToken(tokenA, alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := l.transferFrom(tokenA, router, alice, router, big.NewInt(500))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	l.approve(tokenA, alice, router, big.NewInt(500))
	if err := l.transferFrom(tokenA, router, alice, router, big.NewInt(500)); err != nil {
		t.Fatalf("transferFrom after approve: %v", err)
	}
	if got := l.allowance(tokenA, alice, router); got.Sign() != 0 {
		t.Fatalf("allowance not consumed: %s", got)
	}
}

func TestPairBurnPaysProRata(t *testing.T) {
	l := newTestLedger(t)
	amount := big.NewInt(1_000_000)
	liquidity, err := l.SeedPair(pairAB, alice, amount, amount)
	if err != nil {
		t.Fatalf("seed pair: %v", err)
	}

	if err := l.transfer(pairAB, alice, pairAB, liquidity); err != nil {
		t.Fatalf("move shares: %v", err)
	}
	amount0, amount1, err := l.pairBurn(pairAB, alice)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	// 999000/1000000 of each reserve.
	if amount0.Int64() != 999_000 || amount1.Int64() != 999_000 {
		t.Fatalf("burn payout: got %s/%s want 999000/999000", amount0, amount1)
	}
	if got := l.TotalSupply(pairAB); got.Int64() != MinimumLiquidity {
		t.Fatalf("supply after burn: got %s want %d", got, MinimumLiquidity)
	}
}

func TestSnapshotRevertRestoresEverything(t *testing.T) {
	l := newTestLedger(t)
	amount := big.NewInt(1_000_000)
	if _, err := l.SeedPair(pairAB, alice, amount, amount); err != nil {
		t.Fatalf("seed pair: %v", err)
	}
	if err := l.MintToken(tokenA, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	snap := l.Snapshot()
	approvalsBefore := l.ApprovalCalls()

	l.approve(tokenA, alice, router, big.NewInt(1000))
	if _, err := l.routerSwap(alice, big.NewInt(1000), nil,
		[]common.Address{tokenA, tokenB}, alice, l.Now()); err != nil {
		t.Fatalf("swap: %v", err)
	}
	l.SetNow(42)

	l.RevertToSnapshot(snap)

	if got := l.BalanceOf(tokenA, alice); got.Int64() != 1000 {
		t.Fatalf("balance not restored: %s", got)
	}
	if got := l.BalanceOf(tokenB, alice); got.Sign() != 0 {
		t.Fatalf("output balance not restored: %s", got)
	}
	p := l.pairs[pairAB]
	if p.reserve0.Cmp(amount) != 0 || p.reserve1.Cmp(amount) != 0 {
		t.Fatalf("reserves not restored: %s/%s", p.reserve0, p.reserve1)
	}
	if l.Now() != 0 {
		t.Fatalf("clock not restored: %d", l.Now())
	}
	if l.ApprovalCalls() != approvalsBefore {
		t.Fatalf("approval counter not restored: %d != %d", l.ApprovalCalls(), approvalsBefore)
	}
}

func TestWrappedNativeRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	l.MintNative(alice, big.NewInt(5000))
	w := NewBackend(l).WrappedNative()
	ctx := context.Background()

	if err := w.Deposit(ctx, alice, big.NewInt(3000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := l.BalanceOf(wrapped, alice); got.Int64() != 3000 {
		t.Fatalf("wrapped balance: got %s want 3000", got)
	}
	if got := l.NativeBalanceOf(alice); got.Int64() != 2000 {
		t.Fatalf("native balance: got %s want 2000", got)
	}

	if err := w.Withdraw(ctx, alice, big.NewInt(3000)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := l.NativeBalanceOf(alice); got.Int64() != 5000 {
		t.Fatalf("native balance after withdraw: got %s want 5000", got)
	}
	if got := l.TotalSupply(wrapped); got.Sign() != 0 {
		t.Fatalf("wrapped supply after withdraw: %s", got)
	}
}
