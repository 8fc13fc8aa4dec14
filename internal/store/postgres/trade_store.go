package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictcore/lmsrd/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, market_id, outcome, amount_in, shares_out,
	price_after, cost_after, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t          domain.Trade
		outcome    int16
		amountIn   int64
		sharesOut  int64
		priceAfter int64
		costAfter  int64
	)
	err := row.Scan(
		&t.ID, &t.MarketID, &outcome, &amountIn, &sharesOut,
		&priceAfter, &costAfter, &t.CreatedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Outcome = int(outcome)
	t.AmountIn = uint64(amountIn)
	t.SharesOut = uint64(sharesOut)
	t.PriceAfter = uint64(priceAfter)
	t.CostAfter = uint64(costAfter)
	return t, nil
}

// Insert journals one trade inside the transaction carrying the market
// state update, so the journal and the state never diverge.
func (s *TradeStore) Insert(ctx context.Context, tx domain.Tx, t domain.Trade) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO trades (
			id, market_id, outcome, amount_in, shares_out,
			price_after, cost_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = ptx.Exec(ctx, query,
		t.ID, t.MarketID, int16(t.Outcome),
		int64(t.AmountIn), int64(t.SharesOut),
		int64(t.PriceAfter), int64(t.CostAfter), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByMarket returns trades for a given market with pagination and optional
// time filtering, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for market %s: %w", marketID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for market %s: %w", marketID, err)
	}
	return trades, nil
}

// ListBefore returns up to limit trades older than before, oldest first. The
// archiver drains the journal in these batches.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before %s: %w", before, err)
	}
	return trades, nil
}

// DeleteBefore removes the given archived trades, constrained to rows older
// than before as a guard against deleting anything the caller did not export.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE created_at < $1 AND id = ANY($2)`,
		before, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete archived trades: %w", err)
	}
	return tag.RowsAffected(), nil
}
