package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictcore/lmsrd/internal/domain"
	"github.com/predictcore/lmsrd/internal/lmsr"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// pgxTx adapts pgx.Tx to domain.Tx so services stay decoupled from pgx.
type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// unwrapTx extracts the pgx transaction from a domain.Tx handed back by Begin.
func unwrapTx(tx domain.Tx) (pgx.Tx, error) {
	pt, ok := tx.(*pgxTx)
	if !ok {
		return nil, fmt.Errorf("postgres: foreign transaction type %T", tx)
	}
	return pt.tx, nil
}

// Begin opens a database transaction for the row-locked trade path.
func (s *MarketStore) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &pgxTx{tx: tx}, nil
}

// Columns are stored as Postgres BIGINT, so uint64 state crosses the wire as
// its two's-complement int64 bit pattern. The numeric core keeps values well
// inside 64 bits either way; the round trip below is lossless.
func encodeState(vals [lmsr.MaxOutcomes]uint64, n uint8) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(vals[i])
	}
	return out
}

func decodeState(vals []int64) [lmsr.MaxOutcomes]uint64 {
	var out [lmsr.MaxOutcomes]uint64
	for i := 0; i < len(vals) && i < lmsr.MaxOutcomes; i++ {
		out[i] = uint64(vals[i])
	}
	return out
}

const marketCols = `id, label, admin, status, scale, num_outcomes,
	reserves, supplies, resolve_at, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m        domain.Market
		status   string
		scale    int64
		outcomes int16
		reserves []int64
		supplies []int64
	)
	err := row.Scan(
		&m.ID, &m.Label, &m.Admin, &status, &scale, &outcomes,
		&reserves, &supplies, &m.ResolveAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	m.State = lmsr.Market{
		Reserves:    decodeState(reserves),
		Supplies:    decodeState(supplies),
		Scale:       uint64(scale),
		NumOutcomes: uint8(outcomes),
	}
	return m, nil
}

// Create inserts a new market. A duplicate ID maps to domain.ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, label, admin, status, scale, num_outcomes,
			reserves, supplies, resolve_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW()
		) ON CONFLICT (id) DO NOTHING`

	if m.State.Scale > math.MaxInt64 {
		return fmt.Errorf("postgres: market %s scale exceeds column range", m.ID)
	}

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.Label, m.Admin, string(m.Status),
		int64(m.State.Scale), int16(m.State.NumOutcomes),
		encodeState(m.State.Reserves, m.State.NumOutcomes),
		encodeState(m.State.Supplies, m.State.NumOutcomes),
		m.ResolveAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetForUpdate retrieves a market inside tx with a row lock, serializing
// concurrent purchases on the same market.
func (s *MarketStore) GetForUpdate(ctx context.Context, tx domain.Tx, id string) (domain.Market, error) {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return domain.Market{}, err
	}

	row := ptx.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1 FOR UPDATE`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	return m, nil
}

// UpdateState writes the mutated numeric state and status back inside tx.
func (s *MarketStore) UpdateState(ctx context.Context, tx domain.Tx, m domain.Market) error {
	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	const query = `
		UPDATE markets SET
			status     = $2,
			reserves   = $3,
			supplies   = $4,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := ptx.Exec(ctx, query,
		m.ID, string(m.Status),
		encodeState(m.State.Reserves, m.State.NumOutcomes),
		encodeState(m.State.Supplies, m.State.NumOutcomes),
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns markets with pagination and optional time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
