package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"liquidityZap/internal/chain"
	"liquidityZap/internal/engine"
)

// PoolReader loads live V2 pair state over eth_call, retrying transient RPC
// failures with exponential backoff.
type PoolReader struct {
	client     *chain.Client
	maxRetries int
	backoff    time.Duration
}

func NewPoolReader(client *chain.Client, maxRetries int, backoff time.Duration) *PoolReader {
	return &PoolReader{
		client:     client,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// ReadPool returns a point-in-time snapshot of a pair: token addresses,
// reserves, and share supply.
func (r *PoolReader) ReadPool(ctx context.Context, pair common.Address) (engine.PoolState, error) {
	if r.client == nil {
		return engine.PoolState{}, fmt.Errorf("chain client is nil")
	}
	pairABI, err := V2PairABI()
	if err != nil {
		return engine.PoolState{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := r.callPairMethod(ctx, pair, pairABI, "token0")
	if err != nil {
		return engine.PoolState{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return engine.PoolState{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.callPairMethod(ctx, pair, pairABI, "token1")
	if err != nil {
		return engine.PoolState{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return engine.PoolState{}, fmt.Errorf("token1: %w", err)
	}

	values, err = r.callPairMethod(ctx, pair, pairABI, "getReserves")
	if err != nil {
		return engine.PoolState{}, err
	}
	if len(values) < 2 {
		return engine.PoolState{}, fmt.Errorf("getReserves: short response")
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return engine.PoolState{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return engine.PoolState{}, fmt.Errorf("reserve1: %w", err)
	}

	values, err = r.callPairMethod(ctx, pair, pairABI, "totalSupply")
	if err != nil {
		return engine.PoolState{}, err
	}
	supply, err := asBigInt(values[0])
	if err != nil {
		return engine.PoolState{}, fmt.Errorf("total supply: %w", err)
	}

	return engine.PoolState{
		Pair:        pair,
		Token0:      token0,
		Token1:      token1,
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		TotalSupply: supply,
	}, nil
}

func (r *PoolReader) callPairMethod(ctx context.Context, pair common.Address, pairABI abi.ABI, method string) ([]interface{}, error) {
	data, err := pairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &pair, Data: data}

	var resp []byte
	err = withRetry(ctx, r.maxRetries, r.backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.client.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := pairABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
