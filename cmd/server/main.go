package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/calculator"
	"github.com/atmx/vault-engine/internal/config"
	"github.com/atmx/vault-engine/internal/feed"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.SnapshotCacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (snapshots will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := calculator.NewWSHub()
	go wsHub.Run(ctx)

	// --- Feeds ---
	opts := []feed.Option{feed.WithPublisher(wsHub), feed.WithRecorder(st)}
	priceFeed := feed.NewPriceFeed(
		feed.NewPriceClient(cfg.PriceFeedURL, feed.WithTimeout(cfg.FeedTimeout)),
		cfg.RefreshInterval, opts...)
	rateFeed := feed.NewRateFeed(
		feed.NewRateClient(cfg.RateFeedURL, feed.WithTimeout(cfg.FeedTimeout)),
		model.GBP, opts...)

	// Serve the last known snapshots until the first fetches land.
	if s, err := st.LatestPriceSnapshot(ctx, model.SOL, model.USD); err == nil {
		priceFeed.Warm(s)
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to load stored price", "err", err)
	}
	if s, err := st.LatestRateSnapshot(ctx, model.USD, model.GBP); err == nil {
		rateFeed.Warm(s)
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to load stored rate", "err", err)
	}

	stopPrices := priceFeed.Start(ctx)
	defer stopPrices()
	go rateFeed.LoadWithRetry(ctx, feed.DefaultRetryInitial, feed.DefaultRetryMax)

	// --- Calculator service ---
	calcSvc := calculator.NewService(calculator.Feeds{Price: priceFeed, Rate: rateFeed}, cfg.MaxMonths)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"vault-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live price and rate updates. Kept outside
		// the timeout group so long-lived connections are not cut.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/projections", calcSvc.CreateProjection)

			r.Get("/price", calcSvc.GetPrice)
			r.Get("/rates/{currency}", calcSvc.GetRate)
			r.Get("/format", calcSvc.Format)
			r.Get("/convert", calcSvc.Convert)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("vault-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down vault-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("vault-engine stopped")
}
