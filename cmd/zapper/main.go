package main

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityZap/internal/engine"
)

func main() {
	root := &cobra.Command{
		Use:          "zapper",
		Short:        "AMM liquidity zap calculator and simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the balancing swap for a zap-in against a live pool",
		RunE:  runEstimate,
	}

	estimateCmd.Flags().String("rpc", "", "chain RPC URL")
	estimateCmd.Flags().String("pair", "", "pair address")
	estimateCmd.Flags().String("token-in", "", "input token address, or token0/token1")
	estimateCmd.Flags().String("amount", "", "input amount in base units (single-asset zap-in)")
	estimateCmd.Flags().String("amount0", "", "token0 amount in base units (rebalancing)")
	estimateCmd.Flags().String("amount1", "", "token1 amount in base units (rebalancing)")
	estimateCmd.Flags().Bool("sell-token0", true, "rebalancing sells the token0 side")
	estimateCmd.Flags().Int64("max-zap-reverse-ratio", 100, "sold reserve must be at least this many times the swap input")
	estimateCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	estimateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	estimateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(estimateCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Execute a zap against an in-memory ledger and record the result",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("rpc", "", "chain RPC URL; omit to seed from --reserve0/--reserve1")
	simulateCmd.Flags().String("pair", "", "pair address (live mode)")
	simulateCmd.Flags().String("token-in", "token0", "input token address, or token0/token1")
	simulateCmd.Flags().String("amount", "", "input amount in base units (single-asset zap-in)")
	simulateCmd.Flags().String("amount0", "", "token0 amount in base units (rebalancing)")
	simulateCmd.Flags().String("amount1", "", "token1 amount in base units (rebalancing)")
	simulateCmd.Flags().Bool("sell-token0", true, "rebalancing sells the token0 side")
	simulateCmd.Flags().String("token-out", "token0", "desired token for zap-out, or token0/token1")
	simulateCmd.Flags().String("liquidity", "", "pool shares to zap out, base units")
	simulateCmd.Flags().String("reserve0", "", "seeded token0 reserve (offline mode)")
	simulateCmd.Flags().String("reserve1", "", "seeded token1 reserve (offline mode)")
	simulateCmd.Flags().String("supply", "", "seeded share supply (offline mode, optional)")
	simulateCmd.Flags().Int64("max-zap-reverse-ratio", 100, "sold reserve must be at least this many times the swap input")
	simulateCmd.Flags().String("out", "./data/zaps.jsonl", "output JSONL path")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN for zap records")
	simulateCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	simulateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func parseAmount(name, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", name, value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", name)
	}
	return amount, nil
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", name, value)
	}
	return common.HexToAddress(value), nil
}

// resolveToken accepts a hex address or the shorthands token0/token1
// referring to the pair's own assets.
func resolveToken(name, value string, st engine.PoolState) (common.Address, error) {
	switch strings.ToLower(value) {
	case "token0":
		return st.Token0, nil
	case "token1":
		return st.Token1, nil
	}
	return parseAddress(name, value)
}
