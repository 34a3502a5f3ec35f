package amm

import (
	"errors"
	"math/big"
	"testing"
)

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid big int literal: %s", s)
	}
	return v
}

// Reference pool: 1,000,000 units on each side, 18 decimals, 0.2% fee.
func referenceReserve() *big.Int {
	r, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	return r
}

func unit() *big.Int {
	u, _ := new(big.Int).SetString("1000000000000000000", 10)
	return u
}

func TestGetAmountOut(t *testing.T) {
	cases := []struct {
		name                        string
		amountIn, reserveIn, reserveOut string
		want                        string
	}{
		{"small balanced", "1000", "1000000", "1000000", "997"},
		{"one unit into reference pool", "1000000000000000000", "1000000000000000000000000", "1000000000000000000000000", "997999003996994010"},
		{"skewed reserves", "500000000000000000", "2000000000000000000000000", "1000000000000000000000000", "249499937749765531"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GetAmountOut(bigFromString(t, tc.amountIn), bigFromString(t, tc.reserveIn), bigFromString(t, tc.reserveOut))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tc.want {
				t.Fatalf("amount out mismatch: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestGetAmountOutRejectsBadInput(t *testing.T) {
	if _, err := GetAmountOut(big.NewInt(0), big.NewInt(10), big.NewInt(10)); !errors.Is(err, ErrInsufficientInput) {
		t.Fatalf("expected ErrInsufficientInput, got %v", err)
	}
	if _, err := GetAmountOut(big.NewInt(5), big.NewInt(0), big.NewInt(10)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestQuote(t *testing.T) {
	got, err := Quote(big.NewInt(3), big.NewInt(8), big.NewInt(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 7 {
		t.Fatalf("quote mismatch: got %s want 7", got)
	}

	zero, err := Quote(big.NewInt(0), big.NewInt(8), big.NewInt(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zero.Sign() != 0 {
		t.Fatalf("quote of zero must be zero, got %s", zero)
	}
}

func TestSqrt(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0", "0"},
		{"1", "1"},
		{"3", "1"},
		{"4", "2"},
		{"15", "3"},
		{"16", "4"},
		{"17", "4"},
		{"1000000", "1000"},
		{"999999999999999999999999999999999999", "999999999999999999"},
		{"1000000000000000000000000000000000000", "1000000000000000000"},
	}
	for _, tc := range cases {
		got := Sqrt(bigFromString(t, tc.in))
		if got.String() != tc.want {
			t.Fatalf("sqrt(%s): got %s want %s", tc.in, got, tc.want)
		}
	}
}

func TestAmountToSwapReferencePool(t *testing.T) {
	reserve := referenceReserve()
	amountIn := unit()

	got, err := AmountToSwap(amountIn, reserve, reserve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Slightly above the naive half split: the fee makes the swap output
	// cheaper than the retained side, so more must be sold.
	want := bigFromString(t, "500500125375391111")
	if got.Cmp(want) != 0 {
		t.Fatalf("amount to swap mismatch: got %s want %s", got, want)
	}

	out, err := GetAmountOut(got, reserve, reserve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "499498875625388953" {
		t.Fatalf("swap output mismatch: got %s", out)
	}
}

// Contributing the remainder plus the swap output must leave at most
// rounding-level dust against the post-swap reserve ratio.
func TestAmountToSwapLeavesOnlyDust(t *testing.T) {
	reserve := referenceReserve()
	amountIn := unit()

	swapIn, err := AmountToSwap(amountIn, reserve, reserve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := GetAmountOut(swapIn, reserve, reserve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	remainder := new(big.Int).Sub(amountIn, swapIn)
	postIn := new(big.Int).Add(reserve, swapIn)
	postOut := new(big.Int).Sub(reserve, out)

	// The value of the remainder at the post-swap ratio, in output units.
	matched, err := Quote(remainder, postIn, postOut)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dust := new(big.Int).Sub(matched, out)
	dust.Abs(dust)

	// One part per million of the contribution.
	limit := new(big.Int).Div(amountIn, big.NewInt(1_000_000))
	if dust.Cmp(limit) > 0 {
		t.Fatalf("leftover too large: %s (limit %s)", dust, limit)
	}
}

func TestRebalancingMatchesSingleAssetWhenOneSideZero(t *testing.T) {
	reserve := referenceReserve()
	amountIn := unit()

	single, err := AmountToSwap(amountIn, reserve, reserve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rebal, err := AmountToSwapForRebalancing(amountIn, big.NewInt(0), reserve, reserve, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rebal.Cmp(single) != 0 {
		t.Fatalf("zero-side rebalancing must equal single-asset result: %s != %s", rebal, single)
	}

	inverse, err := AmountToSwapForRebalancing(big.NewInt(0), amountIn, reserve, reserve, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inverse.Cmp(single) != 0 {
		t.Fatalf("inverse zero-side rebalancing must equal single-asset result: %s != %s", inverse, single)
	}
}

func TestRebalancingReferencePool(t *testing.T) {
	reserve := referenceReserve()
	amount0 := unit()
	amount1 := new(big.Int).Div(unit(), big.NewInt(2))

	got, err := AmountToSwapForRebalancing(amount0, amount1, reserve, reserve, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := bigFromString(t, "250249968906502140")
	if got.Cmp(want) != 0 {
		t.Fatalf("rebalancing sale mismatch: got %s want %s", got, want)
	}

	out, err := GetAmountOut(got, reserve, reserve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "249749406593907463" {
		t.Fatalf("rebalancing swap output mismatch: got %s", out)
	}
}

// Swapping the argument order must flip the sell direction and produce
// identical magnitudes, regardless of which asset is labeled 0.
func TestRebalancingSymmetry(t *testing.T) {
	cases := []struct {
		amount0, amount1, reserve0, reserve1 string
	}{
		{"1000000000000000000", "500000000000000000", "1000000000000000000000000", "1000000000000000000000000"},
		{"7000000000000000000", "1000000000000000000", "3000000000000000000000000", "9000000000000000000000000"},
		{"123456789123456789", "0", "55555555555555555555", "777777777777777777777"},
	}
	for _, tc := range cases {
		a0 := bigFromString(t, tc.amount0)
		a1 := bigFromString(t, tc.amount1)
		r0 := bigFromString(t, tc.reserve0)
		r1 := bigFromString(t, tc.reserve1)

		forward, err := AmountToSwapForRebalancing(a0, a1, r0, r1, true)
		if err != nil {
			t.Fatalf("forward direction failed: %v", err)
		}
		mirrored, err := AmountToSwapForRebalancing(a1, a0, r1, r0, false)
		if err != nil {
			t.Fatalf("mirrored direction failed: %v", err)
		}
		if forward.Cmp(mirrored) != 0 {
			t.Fatalf("symmetry violated: %s != %s", forward, mirrored)
		}
	}
}

func TestRebalancingWrongDirection(t *testing.T) {
	reserve := referenceReserve()
	amount0 := unit()
	amount1 := new(big.Int).Div(unit(), big.NewInt(2))

	if _, err := AmountToSwapForRebalancing(amount0, amount1, reserve, reserve, false); !errors.Is(err, ErrWrongTradeDirection) {
		t.Fatalf("expected ErrWrongTradeDirection, got %v", err)
	}
	if _, err := AmountToSwapForRebalancing(amount1, amount0, reserve, reserve, true); !errors.Is(err, ErrWrongTradeDirection) {
		t.Fatalf("expected ErrWrongTradeDirection, got %v", err)
	}
}

func TestRebalancingBalancedAmountsRejected(t *testing.T) {
	reserve := referenceReserve()
	amount := unit()

	// Amounts already at the pool ratio: neither side is in excess.
	if _, err := AmountToSwapForRebalancing(amount, amount, reserve, reserve, false); !errors.Is(err, ErrInsufficientInput) {
		t.Fatalf("expected ErrInsufficientInput, got %v", err)
	}
}
