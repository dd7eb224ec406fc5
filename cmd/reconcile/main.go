// Command reconcile re-runs the analytics reconciler over every delivered
// order, repairing product sales rollups after drift or missed synchronous
// runs. Safe to run repeatedly: already-processed orders are skipped.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/quickbite/delivery-core/internal/domain/analytics"
	"github.com/quickbite/delivery-core/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	// Interrupts stop the batch between orders, never mid-order.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		lg.Fatal("create db pool", zap.Error(err))
	}
	defer pool.Close()

	reconciler := analytics.New(postgres.NewAnalyticsStore(pool), lg)
	res, err := reconciler.Backfill(ctx)
	if err != nil {
		lg.Fatal("backfill aborted",
			zap.Int("processed", res.Processed),
			zap.Int("failed", res.Failed),
			zap.Error(err),
		)
	}

	lg.Info("backfill complete",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)
}
