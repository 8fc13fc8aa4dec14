// Package pipeline contains background jobs that run alongside the API
// server, currently the trade-journal archiver.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictcore/lmsrd/internal/domain"
)

// Archiver exports old trade-journal rows to object storage as JSONL batches
// and prunes the exported rows from the database.
type Archiver struct {
	trades        domain.TradeStore
	blob          domain.BlobWriter
	retentionDays int
	batchSize     int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(trades domain.TradeStore, blob domain.BlobWriter, retentionDays, batchSize int, logger *slog.Logger) *Archiver {
	return &Archiver{
		trades:        trades,
		blob:          blob,
		retentionDays: retentionDays,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// archivedTrade is the JSONL export schema. Field names are part of the
// archive format; changing them breaks downstream consumers of old objects.
type archivedTrade struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	Outcome    int       `json:"outcome"`
	AmountIn   uint64    `json:"amount_in"`
	SharesOut  uint64    `json:"shares_out"`
	PriceAfter uint64    `json:"price_after"`
	CostAfter  uint64    `json:"cost_after"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArchiveTrades exports trades older than before in batches and deletes each
// batch only after its object upload succeeded. It returns the number of
// rows moved to cold storage.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		batch, err := a.trades.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("listing trades before %v: %w", before, err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		ids := make([]string, 0, len(batch))
		for _, t := range batch {
			if err := enc.Encode(archivedTrade{
				ID:         t.ID,
				MarketID:   t.MarketID,
				Outcome:    t.Outcome,
				AmountIn:   t.AmountIn,
				SharesOut:  t.SharesOut,
				PriceAfter: t.PriceAfter,
				CostAfter:  t.CostAfter,
				CreatedAt:  t.CreatedAt,
			}); err != nil {
				return total, fmt.Errorf("encoding trade %s: %w", t.ID, err)
			}
			ids = append(ids, t.ID)
		}

		// Path is keyed by the first trade in the batch so reruns after a
		// partial failure overwrite rather than duplicate.
		first := batch[0]
		path := fmt.Sprintf("archive/trades/%s/%s.jsonl",
			first.CreatedAt.UTC().Format("2006-01-02"), first.ID)

		if err := a.blob.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("uploading %s: %w", path, err)
		}

		deleted, err := a.trades.DeleteBefore(ctx, before, ids)
		if err != nil {
			return total, fmt.Errorf("pruning archived trades: %w", err)
		}
		total += deleted

		a.logger.Info("archived trade batch",
			slog.String("path", path),
			slog.Int("exported", len(batch)),
			slog.Int64("pruned", deleted),
		)

		if len(batch) < a.batchSize {
			return total, nil
		}
	}
}

// Run executes a single archive pass using the configured retention window.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	archived, err := a.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trades before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete", slog.Int64("trades_archived", archived))
	return nil
}

// RunPeriodic runs archive passes on a fixed interval until the context is
// cancelled.
func (a *Archiver) RunPeriodic(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
