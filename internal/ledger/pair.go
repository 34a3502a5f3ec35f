package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityZap/internal/amm"
)

// MinimumLiquidity is burned to the zero address on a pair's first deposit so
// the share supply can never be drained to zero.
const MinimumLiquidity = 1000

var (
	ErrInsufficientLiquidityMinted = errors.New("ledger: insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("ledger: insufficient liquidity burned")
	ErrInsufficientOutputAmount    = errors.New("ledger: insufficient output amount")
	ErrInsufficientInputAmount     = errors.New("ledger: insufficient input amount")
	ErrKInvariant                  = errors.New("ledger: k invariant violated")

	minimumLiquidity = big.NewInt(MinimumLiquidity)
	zeroAddress      = common.Address{}
)

// pairMint issues shares for whatever tokens the pair has received beyond its
// booked reserves. First deposit prices shares at sqrt(amount0*amount1) and
// burns MinimumLiquidity of them.
func (l *Ledger) pairMint(pairAddr, to common.Address) (*big.Int, error) {
	p, ok := l.pairs[pairAddr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pairAddr.Hex())
	}
	balance0 := l.balance(p.token0, pairAddr)
	balance1 := l.balance(p.token1, pairAddr)
	amount0 := new(big.Int).Sub(balance0, p.reserve0)
	amount1 := new(big.Int).Sub(balance1, p.reserve1)

	supply := l.TotalSupply(pairAddr)
	var liquidity *big.Int
	if supply.Sign() == 0 {
		liquidity = amm.Sqrt(new(big.Int).Mul(amount0, amount1))
		liquidity.Sub(liquidity, minimumLiquidity)
		if liquidity.Sign() <= 0 {
			return nil, ErrInsufficientLiquidityMinted
		}
		l.mint(pairAddr, zeroAddress, minimumLiquidity)
	} else {
		share0 := new(big.Int).Mul(amount0, supply)
		share0.Div(share0, p.reserve0)
		share1 := new(big.Int).Mul(amount1, supply)
		share1.Div(share1, p.reserve1)
		liquidity = share0
		if share1.Cmp(share0) < 0 {
			liquidity = share1
		}
		if liquidity.Sign() <= 0 {
			return nil, ErrInsufficientLiquidityMinted
		}
	}
	l.mint(pairAddr, to, liquidity)
	p.reserve0.Set(balance0)
	p.reserve1.Set(balance1)
	return liquidity, nil
}

// pairBurn destroys the shares held by the pair itself and pays out the
// pro-rata slice of both reserves to `to`.
func (l *Ledger) pairBurn(pairAddr, to common.Address) (*big.Int, *big.Int, error) {
	p, ok := l.pairs[pairAddr]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPair, pairAddr.Hex())
	}
	liquidity := new(big.Int).Set(l.balance(pairAddr, pairAddr))
	supply := l.TotalSupply(pairAddr)
	if supply.Sign() == 0 {
		return nil, nil, ErrInsufficientLiquidityBurned
	}

	balance0 := l.balance(p.token0, pairAddr)
	balance1 := l.balance(p.token1, pairAddr)
	amount0 := new(big.Int).Mul(liquidity, balance0)
	amount0.Div(amount0, supply)
	amount1 := new(big.Int).Mul(liquidity, balance1)
	amount1.Div(amount1, supply)
	if amount0.Sign() == 0 || amount1.Sign() == 0 {
		return nil, nil, ErrInsufficientLiquidityBurned
	}

	if err := l.burn(pairAddr, pairAddr, liquidity); err != nil {
		return nil, nil, err
	}
	if err := l.transfer(p.token0, pairAddr, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := l.transfer(p.token1, pairAddr, to, amount1); err != nil {
		return nil, nil, err
	}
	p.reserve0.Set(l.balance(p.token0, pairAddr))
	p.reserve1.Set(l.balance(p.token1, pairAddr))
	return amount0, amount1, nil
}

// pairSwap pays out the requested amounts and then checks the constant
// product against the fee-adjusted post-swap balances. Inputs are whatever
// the pair received since its last booked reserves.
func (l *Ledger) pairSwap(pairAddr common.Address, amount0Out, amount1Out *big.Int, to common.Address) error {
	p, ok := l.pairs[pairAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pairAddr.Hex())
	}
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return ErrInsufficientOutputAmount
	}
	if amount0Out.Cmp(p.reserve0) >= 0 || amount1Out.Cmp(p.reserve1) >= 0 {
		return fmt.Errorf("%w: output exceeds reserves", ErrInsufficientOutputAmount)
	}

	if amount0Out.Sign() > 0 {
		if err := l.transfer(p.token0, pairAddr, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if err := l.transfer(p.token1, pairAddr, to, amount1Out); err != nil {
			return err
		}
	}

	balance0 := l.balance(p.token0, pairAddr)
	balance1 := l.balance(p.token1, pairAddr)
	amount0In := swapInput(balance0, p.reserve0, amount0Out)
	amount1In := swapInput(balance1, p.reserve1, amount1Out)
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return ErrInsufficientInputAmount
	}

	// 0.2% fee: balance*1000 - 2*amountIn, compared against reserves*1000.
	adjusted0 := new(big.Int).Mul(balance0, big.NewInt(1000))
	adjusted0.Sub(adjusted0, new(big.Int).Mul(amount0In, big.NewInt(2)))
	adjusted1 := new(big.Int).Mul(balance1, big.NewInt(1000))
	adjusted1.Sub(adjusted1, new(big.Int).Mul(amount1In, big.NewInt(2)))

	left := new(big.Int).Mul(adjusted0, adjusted1)
	right := new(big.Int).Mul(p.reserve0, p.reserve1)
	right.Mul(right, big.NewInt(1000*1000))
	if left.Cmp(right) < 0 {
		return ErrKInvariant
	}

	p.reserve0.Set(balance0)
	p.reserve1.Set(balance1)
	return nil
}

func swapInput(balance, reserve, amountOut *big.Int) *big.Int {
	floor := new(big.Int).Sub(reserve, amountOut)
	if balance.Cmp(floor) > 0 {
		return new(big.Int).Sub(balance, floor)
	}
	return new(big.Int)
}

// SeedPairWithSupply books externally observed reserves and share supply,
// crediting the provider with all shares above the locked minimum. Used when
// simulating against a live pool snapshot.
func (l *Ledger) SeedPairWithSupply(pairAddr, provider common.Address, reserve0, reserve1, supply *big.Int) error {
	p, ok := l.pairs[pairAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pairAddr.Hex())
	}
	if l.TotalSupply(pairAddr).Sign() != 0 {
		return fmt.Errorf("ledger: pair %s already seeded", pairAddr.Hex())
	}
	if supply.Cmp(minimumLiquidity) <= 0 {
		return ErrInsufficientLiquidityMinted
	}
	l.mint(p.token0, pairAddr, reserve0)
	l.mint(p.token1, pairAddr, reserve1)
	l.mint(pairAddr, zeroAddress, minimumLiquidity)
	l.mint(pairAddr, provider, new(big.Int).Sub(supply, minimumLiquidity))
	p.reserve0.Set(reserve0)
	p.reserve1.Set(reserve1)
	return nil
}

// SeedPair mints fresh tokens straight into the pair and books them as the
// provider's deposit. Test and simulation setup only.
func (l *Ledger) SeedPair(pairAddr, provider common.Address, amount0, amount1 *big.Int) (*big.Int, error) {
	p, ok := l.pairs[pairAddr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pairAddr.Hex())
	}
	l.mint(p.token0, pairAddr, amount0)
	l.mint(p.token1, pairAddr, amount1)
	return l.pairMint(pairAddr, provider)
}
