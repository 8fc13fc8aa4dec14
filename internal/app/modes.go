package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/predictcore/lmsrd/internal/server"
	"github.com/predictcore/lmsrd/internal/server/handler"
	"github.com/predictcore/lmsrd/internal/server/ws"
	"github.com/predictcore/lmsrd/internal/service"
)

// shutdownGrace is how long in-flight HTTP requests get to finish after the
// run context is cancelled.
const shutdownGrace = 10 * time.Second

// ServeMode runs the HTTP and WebSocket API without the archival pipeline.
// It blocks until the context is cancelled or the server fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "mode: serve")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: serve mode requires server.enabled = true")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the trade-journal archival loop. Useful as a
// standalone cron-style worker next to one or more serve instances.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "mode: archive")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires archive.enabled = true")
	}

	return deps.Archiver.RunPeriodic(ctx, a.cfg.Archive.Interval.Duration)
}

// FullMode runs the API server and the archival loop in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "mode: full")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	if deps.Archiver != nil {
		archiver := deps.Archiver
		interval := a.cfg.Archive.Interval.Duration
		g.Go(func() error {
			return archiver.RunPeriodic(ctx, interval)
		})
	}

	return g.Wait()
}

// startServer assembles the service layer, handlers, and WebSocket hub, then
// launches the HTTP server and its shutdown watcher on the errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	marketSvc := service.NewMarketService(deps.MarketStore, deps.PriceCache, a.logger)
	tradeSvc := service.NewTradeService(deps.MarketStore, deps.TradeStore, deps.PriceCache, deps.SignalBus, a.logger)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Trades:  handler.NewTradeHandler(tradeSvc, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})
}
