package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "housing_reviews/internal/adapters/http_server"
	"housing_reviews/internal/adapters/observability"
	redisad "housing_reviews/internal/adapters/redis"
	"housing_reviews/internal/app"
	"housing_reviews/internal/domain"
	"housing_reviews/internal/shared"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api", cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	store, err := shared.OpenStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store failed")
	}
	defer store.Close()

	gate, err := shared.IdentityGate(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("mode", cfg.IdentityMode).Msg("identity gate init failed")
	}

	// a nil cache disables rating-summary caching
	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Msg("redis unreachable; continuing, cache errors degrade to recompute")
		}
		defer rc.Close()
		cache = rc
	}

	policy := cfg.RetryPolicy()
	h := &server.Handlers{
		Reviews:    app.NewReviewService(store, policy),
		Engagement: app.NewEngagementService(store, policy),
		Q:          app.NewQueryService(store, cache, cfg.CacheTTL),
	}

	srv := server.New(gate, cfg.HTTPTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Str("identity", cfg.IdentityMode).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
