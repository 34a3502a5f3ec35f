package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityZap/internal/chain"
	"liquidityZap/internal/config"
	"liquidityZap/internal/dex"
	"liquidityZap/internal/engine"
)

func runEstimate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	pairAddr, err := parseAddress("pair", cfg.Pair)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	block, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	reader := dex.NewPoolReader(chainClient, cfg.MaxRetries, cfg.RetryBackoff)
	st, err := reader.ReadPool(ctx, pairAddr)
	if err != nil {
		return fmt.Errorf("read pool: %w", err)
	}

	logger.Info("pool snapshot",
		zap.Uint64("block", block),
		zap.String("pair", st.Pair.Hex()),
		zap.String("token0", st.Token0.Hex()),
		zap.String("token1", st.Token1.Hex()),
		zap.String("reserve0", st.Reserve0.String()),
		zap.String("reserve1", st.Reserve1.String()),
		zap.String("total_supply", st.TotalSupply.String()),
	)

	ratio := big.NewInt(cfg.MaxZapReverseRatio)
	var plan engine.SwapPlan
	switch {
	case cfg.AmountIn != "":
		tokenIn, err := resolveToken("token-in", cfg.TokenIn, st)
		if err != nil {
			return err
		}
		amountIn, err := parseAmount("amount", cfg.AmountIn)
		if err != nil {
			return err
		}
		plan, err = engine.PlanZapIn(st, tokenIn, amountIn, ratio)
		if err != nil {
			return fmt.Errorf("plan zap in: %w", err)
		}
	case cfg.Amount0 != "" || cfg.Amount1 != "":
		amount0, err := parseAmount("amount0", orZero(cfg.Amount0))
		if err != nil {
			return err
		}
		amount1, err := parseAmount("amount1", orZero(cfg.Amount1))
		if err != nil {
			return err
		}
		plan, err = engine.PlanRebalancing(st, st.Token0, st.Token1, amount0, amount1, ratio, cfg.SellToken0)
		if err != nil {
			return fmt.Errorf("plan rebalancing: %w", err)
		}
	default:
		return fmt.Errorf("either --amount or --amount0/--amount1 is required")
	}

	metaCache := dex.NewTokenMetaCache()
	metaIn := fetchMeta(ctx, chainClient, metaCache, plan.TokenIn, logger)
	metaOut := fetchMeta(ctx, chainClient, metaCache, plan.TokenOut, logger)

	fmt.Printf("pair:      %s\n", st.Pair.Hex())
	fmt.Printf("sell:      %s %s (%s)\n", dex.FormatAmount(plan.AmountIn, metaIn.Decimals), metaIn.Symbol, plan.TokenIn.Hex())
	fmt.Printf("receive:   %s %s (%s)\n", dex.FormatAmount(plan.AmountOut, metaOut.Decimals), metaOut.Symbol, plan.TokenOut.Hex())
	fmt.Printf("raw:       %s -> %s\n", plan.AmountIn, plan.AmountOut)

	logger.Info("estimate",
		zap.String("pair", st.Pair.Hex()),
		zap.String("token_in", plan.TokenIn.Hex()),
		zap.String("token_out", plan.TokenOut.Hex()),
		zap.String("swap_amount_in", plan.AmountIn.String()),
		zap.String("swap_amount_out", plan.AmountOut.String()),
		zap.Bool("sell_token0", plan.SellToken0),
	)
	return nil
}

// fetchMeta resolves token metadata through the cache so each token is
// fetched at most once per run. Failures are cached too, with a display
// fallback of 18 decimals.
func fetchMeta(ctx context.Context, chainClient *chain.Client, cache *dex.TokenMetaCache, token common.Address, logger *zap.Logger) dex.TokenMeta {
	if meta, ok := cache.Get(token); ok {
		return meta
	}
	meta, err := dex.FetchTokenMeta(ctx, chainClient, token, logger)
	if err != nil {
		logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
		meta.Decimals = 18
	}
	cache.Set(token, meta)
	return meta
}

func orZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}
