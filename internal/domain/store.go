package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Tx is a store transaction scope. Implementations hand it back to the
// store methods that take one so reads and writes share the same
// database transaction.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// MarketStore persists markets and their numeric state.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)

	// Begin opens a transaction; GetForUpdate row-locks the market inside
	// it and UpdateState writes the mutated numeric state back. The trade
	// path uses the three together so concurrent purchases on one market
	// serialize at the row.
	Begin(ctx context.Context) (Tx, error)
	GetForUpdate(ctx context.Context, tx Tx, id string) (Market, error)
	UpdateState(ctx context.Context, tx Tx, market Market) error
}

// TradeStore persists the append-only trade journal.
type TradeStore interface {
	Insert(ctx context.Context, tx Tx, trade Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error)
}
