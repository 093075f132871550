package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/api/router"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/bookinglog"
	appconfig "github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/config"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/http/handlers"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/observability/metrics"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/session"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clensy booking API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	registry := prometheus.NewRegistry()
	wizardMetrics := metrics.NewWizardMetrics(registry)

	crm, err := quoting.NewClient(quoting.Config{
		BaseURL:  cfg.QuotingBaseURL,
		Username: cfg.QuotingUsername,
		Password: cfg.QuotingPassword,
		Timeout:  cfg.QuotingTimeout,
	}, logger, wizardMetrics)
	if err != nil {
		logger.Error("quoting client init failed", "error", err)
		os.Exit(1)
	}

	var store session.Store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis unavailable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		store = session.NewRedisStore(redisClient, cfg.SessionTTL)
	} else {
		logger.Info("no redis configured, using in-memory sessions")
		store = session.NewMemoryStore(cfg.SessionTTL)
	}

	var bookingLog *bookinglog.Service
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		bookingLog = bookinglog.NewService(bookinglog.NewRepository(pool), logger)
	} else {
		logger.Info("no database configured, booking log disabled")
	}

	wizardHandler := handlers.NewWizardHandler(crm, store, handlers.WizardConfig{
		ScopeGroupID:      cfg.ScopeGroupID,
		BillingTermsID:    cfg.BillingTermsID,
		PriceDebounce:     cfg.PriceDebounce,
		RestoreSettle:     cfg.RestoreSettle,
		AvailabilityHours: cfg.AvailabilityHrs,
	}, logger, wizardMetrics, bookingLog)

	r := router.New(&router.Config{
		Logger:             logger,
		Wizard:             wizardHandler,
		FAQ:                handlers.NewFAQHandler(),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimit:          5,
		RateLimitBurst:     20,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
