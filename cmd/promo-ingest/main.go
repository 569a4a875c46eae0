package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/promoingest"
	"github.com/xenking/storefront/internal/repository"
)

func main() {
	var (
		pattern     string
		databaseURL string
		cfg         promoingest.Config
	)

	flag.StringVar(&pattern, "shards", "data/couponbase*.gz", "glob matching gzip shard files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.Quorum, "quorum", 2, "number of shards a code must appear in")
	flag.UintVar(&cfg.BloomCapacity, "bloom-capacity", 120_000_000, "expected codes per shard")
	flag.Float64Var(&cfg.BloomFPR, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}

		shards, err := filepath.Glob(pattern)
		if err != nil {
			return errors.Wrapf(err, "glob %q", pattern)
		}
		slices.Sort(shards)
		cfg.Shards = shards

		return run(ctx, lg, cfg, databaseURL)
	})
}

func run(ctx context.Context, lg *zap.Logger, cfg promoingest.Config, databaseURL string) error {
	lg.Info("Connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	in, err := promoingest.New(cfg, repository.NewCouponRepository(pool))
	if err != nil {
		return err
	}

	stats, err := in.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "ingest")
	}

	lg.Info("Promo ingest completed",
		zap.Int("shards", len(cfg.Shards)),
		zap.Uint64("scanned", stats.Scanned),
		zap.Int("accepted", stats.Accepted),
		zap.Int("written", stats.Written),
	)
	return nil
}
