// Package ledger is an in-memory asset ledger with constant-product pairs, a
// two-hop router, and snapshot/revert. It backs the zap engine in simulations
// and tests: every balance, allowance, reserve, and the clock are plain state
// that can be checkpointed and rolled back as a unit.
//
// A Ledger is not safe for concurrent use; callers serialize access.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownToken          = errors.New("ledger: unknown token")
	ErrUnknownPair           = errors.New("ledger: unknown pair")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrExpiredDeadline       = errors.New("ledger: expired deadline")
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

type tokenInfo struct {
	symbol string
}

type pairState struct {
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

// Ledger holds the full asset state. Token and pair registrations are
// append-only; balances, allowances, reserves, supplies, the approval call
// counter, and the clock are covered by snapshots.
type Ledger struct {
	now     uint64
	router  common.Address
	wnative common.Address

	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
	supply     map[common.Address]*big.Int
	approvals  int

	tokens       map[common.Address]tokenInfo
	pairs        map[common.Address]*pairState
	pairByTokens map[pairKey]common.Address

	snapshots []*snapshot
}

// New returns an empty ledger with the clock at zero.
func New() *Ledger {
	return &Ledger{
		native:       make(map[common.Address]*big.Int),
		balances:     make(map[common.Address]map[common.Address]*big.Int),
		allowances:   make(map[common.Address]map[allowanceKey]*big.Int),
		supply:       make(map[common.Address]*big.Int),
		tokens:       make(map[common.Address]tokenInfo),
		pairs:        make(map[common.Address]*pairState),
		pairByTokens: make(map[pairKey]common.Address),
	}
}

// Now returns the ledger clock.
func (l *Ledger) Now() uint64 {
	return l.now
}

// SetNow moves the ledger clock.
func (l *Ledger) SetNow(ts uint64) {
	l.now = ts
}

// SetRouter fixes the router's account address.
func (l *Ledger) SetRouter(addr common.Address) {
	l.router = addr
}

// CreateToken registers a fungible asset.
func (l *Ledger) CreateToken(addr common.Address, symbol string) {
	l.tokens[addr] = tokenInfo{symbol: symbol}
}

// CreateWrappedNative registers the 1:1 wrapper for the native coin.
func (l *Ledger) CreateWrappedNative(addr common.Address, symbol string) {
	l.CreateToken(addr, symbol)
	l.wnative = addr
}

// CreatePair registers a constant-product pair; its share token shares the
// pair's address. Tokens must be given in canonical (ascending) order and be
// already registered.
func (l *Ledger) CreatePair(addr, token0, token1 common.Address) error {
	if token0 == token1 {
		return fmt.Errorf("ledger: pair of identical tokens")
	}
	if bytesCompare(token0, token1) > 0 {
		return fmt.Errorf("ledger: pair tokens out of order")
	}
	if _, ok := l.tokens[token0]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token0.Hex())
	}
	if _, ok := l.tokens[token1]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token1.Hex())
	}
	l.tokens[addr] = tokenInfo{symbol: l.tokens[token0].symbol + "-" + l.tokens[token1].symbol}
	l.pairs[addr] = &pairState{
		token0:   token0,
		token1:   token1,
		reserve0: new(big.Int),
		reserve1: new(big.Int),
	}
	l.pairByTokens[pairKey{token0, token1}] = addr
	return nil
}

func bytesCompare(a, b common.Address) int {
	return new(big.Int).SetBytes(a.Bytes()).Cmp(new(big.Int).SetBytes(b.Bytes()))
}

// MintToken credits freshly issued tokens to an account. Seeding only; pair
// share tokens are minted by the pair itself.
func (l *Ledger) MintToken(token, to common.Address, amount *big.Int) error {
	if _, ok := l.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	l.mint(token, to, amount)
	return nil
}

// MintNative credits native value to an account.
func (l *Ledger) MintNative(to common.Address, amount *big.Int) {
	bal := l.nativeBalance(to)
	bal.Add(bal, amount)
}

// BalanceOf returns a copy of an account's token balance.
func (l *Ledger) BalanceOf(token, owner common.Address) *big.Int {
	return new(big.Int).Set(l.balance(token, owner))
}

// NativeBalanceOf returns a copy of an account's native balance.
func (l *Ledger) NativeBalanceOf(owner common.Address) *big.Int {
	return new(big.Int).Set(l.nativeBalance(owner))
}

// TotalSupply returns a copy of a token's outstanding supply.
func (l *Ledger) TotalSupply(token common.Address) *big.Int {
	if s, ok := l.supply[token]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// ApprovalCalls counts Approve invocations across all tokens since the ledger
// was created, snapshots included.
func (l *Ledger) ApprovalCalls() int {
	return l.approvals
}

func (l *Ledger) balance(token, owner common.Address) *big.Int {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[token] = holders
	}
	bal, ok := holders[owner]
	if !ok {
		bal = new(big.Int)
		holders[owner] = bal
	}
	return bal
}

func (l *Ledger) nativeBalance(owner common.Address) *big.Int {
	bal, ok := l.native[owner]
	if !ok {
		bal = new(big.Int)
		l.native[owner] = bal
	}
	return bal
}

func (l *Ledger) allowance(token, owner, spender common.Address) *big.Int {
	grants, ok := l.allowances[token]
	if !ok {
		grants = make(map[allowanceKey]*big.Int)
		l.allowances[token] = grants
	}
	a, ok := grants[allowanceKey{owner, spender}]
	if !ok {
		a = new(big.Int)
		grants[allowanceKey{owner, spender}] = a
	}
	return a
}

func (l *Ledger) approve(token, owner, spender common.Address, value *big.Int) {
	l.allowance(token, owner, spender).Set(value)
	l.approvals++
}

func (l *Ledger) transfer(token, from, to common.Address, value *big.Int) error {
	if value.Sign() < 0 {
		return fmt.Errorf("ledger: negative transfer")
	}
	bal := l.balance(token, from)
	if bal.Cmp(value) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, value)
	}
	bal.Sub(bal, value)
	dst := l.balance(token, to)
	dst.Add(dst, value)
	return nil
}

func (l *Ledger) transferFrom(token, spender, from, to common.Address, value *big.Int) error {
	if spender != from {
		granted := l.allowance(token, from, spender)
		if granted.Cmp(value) < 0 {
			return fmt.Errorf("%w: %s granted %s to %s, needs %s",
				ErrInsufficientAllowance, from.Hex(), granted, spender.Hex(), value)
		}
		granted.Sub(granted, value)
	}
	return l.transfer(token, from, to, value)
}

func (l *Ledger) transferNative(from, to common.Address, value *big.Int) error {
	if value.Sign() < 0 {
		return fmt.Errorf("ledger: negative transfer")
	}
	bal := l.nativeBalance(from)
	if bal.Cmp(value) < 0 {
		return fmt.Errorf("%w: %s holds %s native, needs %s", ErrInsufficientBalance, from.Hex(), bal, value)
	}
	bal.Sub(bal, value)
	dst := l.nativeBalance(to)
	dst.Add(dst, value)
	return nil
}

func (l *Ledger) mint(token, to common.Address, value *big.Int) {
	bal := l.balance(token, to)
	bal.Add(bal, value)
	s, ok := l.supply[token]
	if !ok {
		s = new(big.Int)
		l.supply[token] = s
	}
	s.Add(s, value)
}

func (l *Ledger) burn(token, from common.Address, value *big.Int) error {
	bal := l.balance(token, from)
	if bal.Cmp(value) < 0 {
		return fmt.Errorf("%w: burn %s of %s", ErrInsufficientBalance, value, token.Hex())
	}
	bal.Sub(bal, value)
	l.supply[token].Sub(l.supply[token], value)
	return nil
}

type snapshot struct {
	now       uint64
	approvals int

	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
	supply     map[common.Address]*big.Int
	reserves   map[common.Address][2]*big.Int
}

// Snapshot checkpoints all mutable state and returns an identifier for
// RevertToSnapshot. Identifiers from discarded checkpoints become invalid.
func (l *Ledger) Snapshot() int {
	snap := &snapshot{
		now:        l.now,
		approvals:  l.approvals,
		native:     make(map[common.Address]*big.Int, len(l.native)),
		balances:   make(map[common.Address]map[common.Address]*big.Int, len(l.balances)),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int, len(l.allowances)),
		supply:     make(map[common.Address]*big.Int, len(l.supply)),
		reserves:   make(map[common.Address][2]*big.Int, len(l.pairs)),
	}
	for owner, bal := range l.native {
		snap.native[owner] = new(big.Int).Set(bal)
	}
	for token, holders := range l.balances {
		copied := make(map[common.Address]*big.Int, len(holders))
		for owner, bal := range holders {
			copied[owner] = new(big.Int).Set(bal)
		}
		snap.balances[token] = copied
	}
	for token, grants := range l.allowances {
		copied := make(map[allowanceKey]*big.Int, len(grants))
		for key, a := range grants {
			copied[key] = new(big.Int).Set(a)
		}
		snap.allowances[token] = copied
	}
	for token, s := range l.supply {
		snap.supply[token] = new(big.Int).Set(s)
	}
	for addr, p := range l.pairs {
		snap.reserves[addr] = [2]*big.Int{new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)}
	}
	l.snapshots = append(l.snapshots, snap)
	return len(l.snapshots) - 1
}

// RevertToSnapshot restores the checkpointed state and discards the given
// checkpoint and everything taken after it. Unknown identifiers are ignored.
func (l *Ledger) RevertToSnapshot(id int) {
	if id < 0 || id >= len(l.snapshots) {
		return
	}
	snap := l.snapshots[id]
	l.snapshots = l.snapshots[:id]

	l.now = snap.now
	l.approvals = snap.approvals
	l.native = snap.native
	l.balances = snap.balances
	l.allowances = snap.allowances
	l.supply = snap.supply
	for addr, r := range snap.reserves {
		p := l.pairs[addr]
		p.reserve0 = r[0]
		p.reserve1 = r[1]
	}
}
