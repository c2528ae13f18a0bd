package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/async"
	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/config"
	"github.com/platinummonkey/workbench/pkg/janitor"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/storage"
)

var (
	configFile  = flag.String("config", os.Getenv(config.ConfigFileEnv), "Path to a YAML configuration file")
	schedule    = flag.String("schedule", "", "Cron schedule for the sweep (default: janitor.schedule from the configuration)")
	gracePeriod = flag.Duration("grace-period", time.Hour, "How long a blob must stay unreferenced before it is deleted")
	dryRun      = flag.Bool("dry-run", false, "Report orphaned blobs without deleting them")
	runOnce     = flag.Bool("run-once", false, "Run one sweep and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", "workbench-janitor")

	ctx := context.Background()

	// Connect to database
	db, err := storage.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	blobs, err := storage.NewBlobStore(ctx, cfg.Storage, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to open blob storage")
		os.Exit(1)
	}

	sweeper := janitor.NewSweeper(assets.NewService(db, blobs, logger), blobs, janitor.Config{
		Concurrency: cfg.Janitor.Concurrency,
		DryRun:      *dryRun || cfg.Janitor.DryRun,
		GracePeriod: *gracePeriod,
	}, logger, audit.NewStructuredLogger(logger))

	// Run once mode. A fresh process has seen no orphan before, so with a
	// non-zero grace period the pass only reports.
	if *runOnce {
		report, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.WithError(err).Error("Sweep failed")
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		if report.Failed > 0 {
			os.Exit(2)
		}
		return
	}

	cronSpec := *schedule
	if cronSpec == "" {
		cronSpec = cfg.Janitor.Schedule
	}

	// Scheduled mode
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err = c.AddFunc(cronSpec, func() {
		err := async.Run(context.Background(), logger, 30*time.Minute, "blob sweep", func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		})
		if err != nil {
			logger.WithError(err).Error("Sweep failed")
		}
	})
	if err != nil {
		logger.WithError(err).WithField("schedule", cronSpec).Error("Failed to schedule sweep")
		os.Exit(1)
	}

	// Start the cron scheduler
	c.Start()
	logger.WithFields(map[string]interface{}{
		"schedule":     cronSpec,
		"grace_period": gracePeriod.String(),
		"dry_run":      *dryRun || cfg.Janitor.DryRun,
	}).Info("Blob janitor started")

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	// Stop the cron scheduler and wait for a running sweep
	stopCtx := c.Stop()
	<-stopCtx.Done()

	logger.Info("Janitor stopped")
}
