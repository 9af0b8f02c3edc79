package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/crosslist/internal/api"
	"github.com/maltedev/crosslist/internal/browser"
	"github.com/maltedev/crosslist/internal/compliance"
	"github.com/maltedev/crosslist/internal/config"
	"github.com/maltedev/crosslist/internal/convert"
	"github.com/maltedev/crosslist/internal/database"
	"github.com/maltedev/crosslist/internal/jobs"
	"github.com/maltedev/crosslist/internal/listing"
	"github.com/maltedev/crosslist/internal/metrics"
	"github.com/maltedev/crosslist/internal/pipeline"
	"github.com/maltedev/crosslist/internal/pricing"
	"github.com/maltedev/crosslist/internal/proxy"
	"github.com/maltedev/crosslist/internal/resilience"
	"github.com/maltedev/crosslist/internal/scraper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Persistence is optional: without DATABASE_URL the service runs
	// in-memory only.
	var db *database.DB
	if cfg.Database.URL != "" {
		db, err = database.New(ctx, database.Config{URL: cfg.Database.URL})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("no DATABASE_URL set, running without persistence")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var redisClient jobs.RedisClient
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, progress events disabled", "addr", cfg.Redis.Addr, "error", err)
	} else {
		redisClient = rdb
	}

	browserPool, err := browser.NewPool(browser.Config{
		Capacity:          cfg.Browser.Capacity,
		Headless:          cfg.Browser.Headless,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		MinDelay:          cfg.Browser.MinDelay,
		MaxDelay:          cfg.Browser.MaxDelay,
	})
	if err != nil {
		logger.Error("failed to initialize browser pool", "error", err)
		os.Exit(1)
	}
	defer browserPool.Close()

	proxies := proxy.NewPool(proxy.Config{
		GatewayURL: cfg.Proxy.GatewayURL,
		Endpoints:  cfg.Proxy.Endpoints,
	}, logger)

	checker, err := compliance.NewChecker()
	if err != nil {
		logger.Error("failed to load compliance data", "error", err)
		os.Exit(1)
	}

	scraperCfg := scraper.Config{
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Scraper.BreakerThreshold,
			Cooldown:         cfg.Scraper.BreakerCooldown,
			Window:           cfg.Scraper.BreakerWindow,
		},
		Retry: resilience.RetryConfig{
			MaxRetries: cfg.Scraper.MaxRetries,
			BaseDelay:  cfg.Scraper.RetryBaseDelay,
			JitterPct:  cfg.Scraper.RetryJitterPct,
		},
		SettleDelay: cfg.Scraper.SettleDelay,
	}

	registry := scraper.NewRegistry()
	for _, impl := range []scraper.Marketplace{
		scraper.NewAmazon(),
		scraper.NewWalmart(cfg.Scraper.WalmartGatewayURL),
	} {
		if err := registry.Register(scraper.New(impl, proxies, browserPool, scraperCfg, m)); err != nil {
			logger.Error("failed to register scraper", "source", impl.Source(), "error", err)
			os.Exit(1)
		}
	}

	p := pipeline.New(
		registry,
		checker,
		pricing.NewEngine(cfg.Pricing.DefaultShipping),
		convert.NewEbayConverter(),
		listing.NewSandboxLister(),
		m,
		pipeline.Config{TargetMargin: cfg.Pricing.TargetMargin},
	)

	var store jobs.Store
	var convStore api.ConversionStore
	if db != nil {
		store = db
		convStore = db
	}
	manager := jobs.NewManager(p, store, redisClient)

	go manager.RunProxyMaintenance(ctx, proxies, cfg.Proxy.ReactivateEvery)

	handlers := api.NewHandlers(p, manager, proxies, convStore)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Router(handlers, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", cfg.Server.Addr(),
		"sources", registry.Sources(),
		"proxies", proxies.Size())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	manager.Wait()
	logger.Info("server stopped")
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
