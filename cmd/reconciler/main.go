package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"housing_reviews/internal/adapters/observability"
	"housing_reviews/internal/app"
	"housing_reviews/internal/shared"
)

func main() {
	repair := flag.Bool("repair", false, "rewrite drifting like counters")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run deadline")
	flag.Parse()

	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "reconciler", cfg.LogLevel)

	if err := run(cfg, *repair, *timeout); err != nil {
		log.Error().Err(err).Msg("reconciliation failed")
		os.Exit(1)
	}
}

func run(cfg shared.Config, repair bool, timeout time.Duration) error {
	log.Info().
		Str("store", cfg.StoreDriver).
		Int("workers", cfg.ReconcileWorkers).
		Bool("repair", repair).
		Msg("reconciler starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	store, err := shared.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := app.NewEngagementService(store, cfg.RetryPolicy())
	rep, err := svc.Reconcile(ctx, repair, cfg.ReconcileWorkers)

	for _, d := range rep.Drifts {
		log.Warn().Str("review", d.ReviewID).Int64("stored", d.Stored).Int64("actual", d.Actual).Msg("like count drift")
	}
	log.Info().
		Int("reviews", rep.ReviewsScanned).
		Int("users", rep.UsersScanned).
		Int("drifts", len(rep.Drifts)).
		Int("repaired", rep.Repaired).
		Msg("reconciliation completed")
	return err
}
