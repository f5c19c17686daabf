package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantara/tradewatch/internal/server"
	"github.com/quantara/tradewatch/internal/server/handler"
	"github.com/quantara/tradewatch/internal/server/ws"
)

// ServeMode adopts unmanaged brokerage positions, then runs the HTTP API,
// the WebSocket hub, and the archive loop until the context is cancelled.
// Watchers spawned by trade signals are drained before returning.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if err := deps.Coordinator.Reconcile(ctx); err != nil {
		return fmt.Errorf("app: startup reconciliation: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		var hub *ws.Hub
		if deps.Bus != nil {
			hub = ws.NewHub(deps.Bus, a.logger)
			g.Go(func() error {
				if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		}

		srv := server.NewServer(
			server.Config{
				Port:        a.cfg.Server.Port,
				CORSOrigins: a.cfg.Server.CORSOrigins,
				APIKey:      a.cfg.Server.APIKey,
			},
			server.Handlers{
				Health:    handler.NewHealthHandler(deps.Coordinator, a.logger),
				Trade:     handler.NewTradeHandler(deps.Coordinator, a.logger),
				Positions: handler.NewPositionHandler(deps.Broker, deps.Ledger, a.logger),
				Events:    handler.NewEventsHandler(deps.Events, a.logger),
			},
			hub,
			a.logger,
		)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			a.archiveLoop(ctx, deps)
			return nil
		})
	}

	err := g.Wait()

	// Let in-flight watchers observe the cancelled lifetime and exit.
	deps.Coordinator.Wait()
	return err
}

// ReconcileMode adopts unmanaged brokerage positions and then monitors them
// until the context is cancelled. No HTTP API is started, so no new signals
// can arrive.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting reconcile mode")

	if err := deps.Coordinator.Reconcile(ctx); err != nil {
		return fmt.Errorf("app: reconciliation: %w", err)
	}

	if deps.Coordinator.ActiveWatchers() == 0 {
		a.logger.InfoContext(ctx, "no positions to monitor, exiting")
		return nil
	}

	<-ctx.Done()
	deps.Coordinator.Wait()
	return nil
}

// archiveLoop periodically moves aged records to object storage.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if err := deps.Archiver.Run(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
