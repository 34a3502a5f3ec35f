package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityZap/internal/model"
)

// Store provides Postgres persistence for zap records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertZaps appends executed zaps. Records are immutable; there is nothing
// to upsert.
func (s *Store) InsertZaps(ctx context.Context, records []model.ZapRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO zap_records (
				chain_id, kind, caller, pair, token0, token1,
				amount0_in, amount1_in, swap_token_in, swap_amount_in, swap_amount_out,
				liquidity_minted, liquidity_burned, token_out, amount_out, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`,
			int64(r.ChainID),
			r.Kind,
			r.Caller,
			r.Pair,
			r.Token0,
			r.Token1,
			r.Amount0In,
			r.Amount1In,
			r.SwapTokenIn,
			r.SwapAmountIn,
			r.SwapAmountOut,
			r.LiquidityMinted,
			r.LiquidityBurned,
			r.TokenOut,
			r.AmountOut,
			r.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
