// Command reindex rebuilds this host's search documents from the primary
// store once and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/meghashyamc/modsearch/config"
	"github.com/meghashyamc/modsearch/db/kvdb"
	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
	"github.com/meghashyamc/modsearch/services/index"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %s\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %s\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logger.NewWithLevel(cfg.GetLogLevel())

	store, err := primarydb.New(log, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	kvDB, err := kvdb.New(log, cfg)
	if err != nil {
		return err
	}
	defer kvDB.Close()

	searchDB, err := searchdb.New(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer searchDB.Close()

	total, err := store.CountMods(ctx)
	if err != nil {
		return err
	}

	service := index.New(ctx, log, searchDB, kvDB, store, index.Options{
		SiteURL:          cfg.GetSiteURL(),
		HostTag:          cfg.GetHostTag(),
		BatchSize:        cfg.GetBatchSize(),
		RequeueOnFailure: cfg.GetRequeueOnFailure(),
	})

	bar := pb.StartNew(int(total))
	run, err := service.Reindex(ctx, uuid.NewString(), index.TriggerCLI, func(stats index.ImportStats) {
		bar.SetCurrent(int64(stats.Scanned))
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	fmt.Printf("run %s: scanned %d, indexed %d, skipped %d, removed %d\n",
		run.ID, run.Scanned, run.Indexed, run.Skipped, run.Removed)
	return nil
}
