package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityZap/internal/chain"
	"liquidityZap/internal/config"
	"liquidityZap/internal/dex"
	"liquidityZap/internal/engine"
	"liquidityZap/internal/ledger"
	"liquidityZap/internal/model"
	"liquidityZap/internal/storage"
	"liquidityZap/internal/storage/postgres"
)

// Synthetic accounts for the simulated world. Offline mode also uses the
// synthetic token and pair addresses.
var (
	simToken0  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	simToken1  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	simWNative = common.HexToAddress("0x000000000000000000000000000000000000000f")
	simPair    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	simRouter  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	simEngine  = common.HexToAddress("0x0000000000000000000000000000000000000e0e")
	simOwner   = common.HexToAddress("0x0000000000000000000000000000000000000123")
	simCaller  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
)

func runSimulate(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, chainID, err := loadPoolState(ctx, cfg, logger)
	if err != nil {
		return err
	}

	l, err := buildWorld(st)
	if err != nil {
		return err
	}
	l.SetNow(uint64(time.Now().Unix()))
	backend := ledger.NewBackend(l)

	eng, err := engine.NewEngine(engine.Config{
		Address:            simEngine,
		Owner:              simOwner,
		MaxZapReverseRatio: big.NewInt(cfg.MaxZapReverseRatio),
	}, backend, logger)
	if err != nil {
		return err
	}

	record := model.ZapRecord{
		ChainID:   chainID,
		Caller:    simCaller.Hex(),
		Pair:      st.Pair.Hex(),
		Token0:    st.Token0.Hex(),
		Token1:    st.Token1.Hex(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	switch {
	case cfg.Liquidity != "":
		if err := simulateZapOut(ctx, cfg, st, l, backend, eng, &record); err != nil {
			return err
		}
	case cfg.AmountIn != "":
		if err := simulateZapIn(ctx, cfg, st, l, backend, eng, &record); err != nil {
			return err
		}
	case cfg.Amount0 != "" || cfg.Amount1 != "":
		if err := simulateRebalancing(ctx, cfg, st, l, backend, eng, &record); err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of --amount, --amount0/--amount1, or --liquidity is required")
	}

	if err := persistRecord(ctx, cfg, record, logger); err != nil {
		return err
	}

	fmt.Printf("kind:            %s\n", record.Kind)
	fmt.Printf("swap:            %s -> %s\n", record.SwapAmountIn, record.SwapAmountOut)
	if record.LiquidityMinted != "" {
		fmt.Printf("shares minted:   %s\n", record.LiquidityMinted)
	}
	if record.AmountOut != "" {
		fmt.Printf("amount out:      %s\n", record.AmountOut)
	}
	return nil
}

func loadPoolState(ctx context.Context, cfg config.Config, logger *zap.Logger) (engine.PoolState, uint64, error) {
	if cfg.RPCURL != "" {
		pairAddr, err := parseAddress("pair", cfg.Pair)
		if err != nil {
			return engine.PoolState{}, 0, err
		}
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return engine.PoolState{}, 0, fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		reader := dex.NewPoolReader(chainClient, cfg.MaxRetries, cfg.RetryBackoff)
		st, err := reader.ReadPool(ctx, pairAddr)
		if err != nil {
			return engine.PoolState{}, 0, fmt.Errorf("read pool: %w", err)
		}
		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			return engine.PoolState{}, 0, fmt.Errorf("chain id: %w", err)
		}
		logger.Info("seeding from live pool",
			zap.String("pair", st.Pair.Hex()),
			zap.String("reserve0", st.Reserve0.String()),
			zap.String("reserve1", st.Reserve1.String()),
			zap.String("total_supply", st.TotalSupply.String()),
		)
		return st, chainID.Uint64(), nil
	}

	if cfg.Reserve0 == "" || cfg.Reserve1 == "" {
		return engine.PoolState{}, 0, fmt.Errorf("offline mode needs --reserve0 and --reserve1")
	}
	reserve0, err := parseAmount("reserve0", cfg.Reserve0)
	if err != nil {
		return engine.PoolState{}, 0, err
	}
	reserve1, err := parseAmount("reserve1", cfg.Reserve1)
	if err != nil {
		return engine.PoolState{}, 0, err
	}
	st := engine.PoolState{
		Pair:     simPair,
		Token0:   simToken0,
		Token1:   simToken1,
		Reserve0: reserve0,
		Reserve1: reserve1,
	}
	if cfg.Supply != "" {
		supply, err := parseAmount("supply", cfg.Supply)
		if err != nil {
			return engine.PoolState{}, 0, err
		}
		st.TotalSupply = supply
	}
	return st, 0, nil
}

func buildWorld(st engine.PoolState) (*ledger.Ledger, error) {
	l := ledger.New()
	l.SetRouter(simRouter)
	l.CreateToken(st.Token0, "TOKEN0")
	l.CreateToken(st.Token1, "TOKEN1")
	l.CreateWrappedNative(simWNative, "WNATIVE")
	if err := l.CreatePair(st.Pair, st.Token0, st.Token1); err != nil {
		return nil, err
	}

	// The caller is also the seeded liquidity provider, so zap-outs have
	// shares to burn.
	if st.TotalSupply != nil && st.TotalSupply.Sign() > 0 {
		if err := l.SeedPairWithSupply(st.Pair, simCaller, st.Reserve0, st.Reserve1, st.TotalSupply); err != nil {
			return nil, err
		}
	} else {
		if _, err := l.SeedPair(st.Pair, simCaller, st.Reserve0, st.Reserve1); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func approveEngine(ctx context.Context, backend *ledger.Backend, token common.Address, amount *big.Int) error {
	tok, err := backend.Token(token)
	if err != nil {
		return err
	}
	return tok.Approve(ctx, simCaller, simEngine, amount)
}

func simulateZapIn(ctx context.Context, cfg config.Config, st engine.PoolState, l *ledger.Ledger, backend *ledger.Backend, eng *engine.Engine, record *model.ZapRecord) error {
	tokenIn, err := resolveToken("token-in", cfg.TokenIn, st)
	if err != nil {
		return err
	}
	amountIn, err := parseAmount("amount", cfg.AmountIn)
	if err != nil {
		return err
	}
	if err := l.MintToken(tokenIn, simCaller, amountIn); err != nil {
		return err
	}
	if err := approveEngine(ctx, backend, tokenIn, amountIn); err != nil {
		return err
	}

	res, err := eng.ZapInToken(ctx, simCaller, tokenIn, amountIn, st.Pair, big.NewInt(1))
	if err != nil {
		return fmt.Errorf("zap in: %w", err)
	}

	record.Kind = model.ZapKindIn
	record.Amount0In = res.Amount0In.String()
	record.Amount1In = res.Amount1In.String()
	record.SwapTokenIn = res.SwapTokenIn.Hex()
	record.SwapAmountIn = res.SwapAmountIn.String()
	record.SwapAmountOut = res.SwapAmountOut.String()
	record.LiquidityMinted = res.LiquidityMinted.String()
	return nil
}

func simulateRebalancing(ctx context.Context, cfg config.Config, st engine.PoolState, l *ledger.Ledger, backend *ledger.Backend, eng *engine.Engine, record *model.ZapRecord) error {
	amount0, err := parseAmount("amount0", orZero(cfg.Amount0))
	if err != nil {
		return err
	}
	amount1, err := parseAmount("amount1", orZero(cfg.Amount1))
	if err != nil {
		return err
	}
	if amount0.Sign() > 0 {
		if err := l.MintToken(st.Token0, simCaller, amount0); err != nil {
			return err
		}
		if err := approveEngine(ctx, backend, st.Token0, amount0); err != nil {
			return err
		}
	}
	if amount1.Sign() > 0 {
		if err := l.MintToken(st.Token1, simCaller, amount1); err != nil {
			return err
		}
		if err := approveEngine(ctx, backend, st.Token1, amount1); err != nil {
			return err
		}
	}

	res, err := eng.ZapInRebalancing(ctx, simCaller, st.Token0, st.Token1, amount0, amount1, st.Pair, big.NewInt(1), nil, cfg.SellToken0)
	if err != nil {
		return fmt.Errorf("zap in rebalancing: %w", err)
	}

	record.Kind = model.ZapKindInRebalancing
	record.Amount0In = res.Amount0In.String()
	record.Amount1In = res.Amount1In.String()
	record.SwapTokenIn = res.SwapTokenIn.Hex()
	record.SwapAmountIn = res.SwapAmountIn.String()
	record.SwapAmountOut = res.SwapAmountOut.String()
	record.LiquidityMinted = res.LiquidityMinted.String()
	return nil
}

func simulateZapOut(ctx context.Context, cfg config.Config, st engine.PoolState, l *ledger.Ledger, backend *ledger.Backend, eng *engine.Engine, record *model.ZapRecord) error {
	tokenOut, err := resolveToken("token-out", cfg.TokenOut, st)
	if err != nil {
		return err
	}
	liquidity, err := parseAmount("liquidity", cfg.Liquidity)
	if err != nil {
		return err
	}
	if held := l.BalanceOf(st.Pair, simCaller); held.Cmp(liquidity) < 0 {
		return fmt.Errorf("seeded shares %s below requested %s", held, liquidity)
	}
	if err := approveEngine(ctx, backend, st.Pair, liquidity); err != nil {
		return err
	}

	res, err := eng.ZapOutToken(ctx, simCaller, st.Pair, tokenOut, liquidity, big.NewInt(1))
	if err != nil {
		return fmt.Errorf("zap out: %w", err)
	}

	record.Kind = model.ZapKindOut
	record.SwapAmountIn = res.SwapAmountIn.String()
	record.SwapAmountOut = res.SwapAmountOut.String()
	record.LiquidityBurned = res.LiquidityIn.String()
	record.TokenOut = res.TokenOut.Hex()
	record.AmountOut = res.AmountOut.String()
	return nil
}

func persistRecord(ctx context.Context, cfg config.Config, record model.ZapRecord, logger *zap.Logger) error {
	records := []model.ZapRecord{record}

	sink := storage.NewJsonlStorage(cfg.Out)
	if err := sink.PutZapBatch(records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	logger.Info("zap record written", zap.String("out", cfg.Out), zap.String("kind", record.Kind))

	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.InsertZaps(ctx, records); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
		logger.Info("zap record stored", zap.String("kind", record.Kind))
	}
	return nil
}
