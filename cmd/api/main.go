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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/emberhealth/clinicflow/internal/api/router"
	appconfig "github.com/emberhealth/clinicflow/internal/config"
	"github.com/emberhealth/clinicflow/internal/http/handlers"
	"github.com/emberhealth/clinicflow/internal/liveview"
	"github.com/emberhealth/clinicflow/internal/observability/metrics"
	"github.com/emberhealth/clinicflow/internal/realtime"
	"github.com/emberhealth/clinicflow/internal/schedule"
	"github.com/emberhealth/clinicflow/internal/store"
	"github.com/emberhealth/clinicflow/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"realtime_transport", cfg.RealtimeTransport,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	pool, err := pgxpool.New(appCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	viewMetrics := metrics.NewViewMetrics(registry)

	// Change-event source for the live views.
	var source liveview.Subscriber
	switch cfg.RealtimeTransport {
	case appconfig.TransportRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		source = realtime.NewRedisSubscriber(client, logger).WithPrefix(cfg.RedisChannelPrefix)
	case appconfig.TransportMemory:
		hub := realtime.NewHub(logger)
		defer hub.Close()
		source = hub
	default:
		hub := realtime.NewHub(logger)
		defer hub.Close()
		listener := realtime.NewPGListener(pool, hub, logger).WithChannel(cfg.RealtimeChannel)
		go func() {
			if err := listener.Run(appCtx); err != nil && appCtx.Err() == nil {
				// Views degrade to their last snapshot; the process stays up.
				logger.Error("postgres listener stopped", "error", err)
			}
		}()
		source = hub
	}

	querier := store.NewPostgresQuerier(pool)
	availability := schedule.NewService(schedule.NewPostgresRepository(pool), logger)

	// The tables the SPA may open live views on, with their fixed shapes.
	viewRegistry := map[string]liveview.Options{
		"appointments": {
			Table:  "appointments",
			Filter: liveview.FilterSpec{{Field: "status", Op: liveview.OpNeq, Operand: "cancelled"}},
			Order:  &liveview.OrderSpec{Field: "starts_at", Direction: liveview.Ascending},
			Limit:  cfg.ViewDefaultLimit,
		},
		"patients": {
			Table: "patients",
			Order: &liveview.OrderSpec{Field: "created_at", Direction: liveview.Descending},
			Limit: cfg.ViewDefaultLimit,
		},
		"weekly_schedules": {
			Table: "weekly_schedules",
			Order: &liveview.OrderSpec{Field: "weekday", Direction: liveview.Ascending},
		},
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Availability:       handlers.NewAvailabilityHandler(availability, logger),
		LiveViews:          handlers.NewLiveViewHandler(querier, source, viewRegistry, logger, viewMetrics),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		StaffJWTSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins: corsOrigins(cfg),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
		// No WriteTimeout: the live-view websockets are long-lived.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
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
	cancelApp()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func corsOrigins(cfg *appconfig.Config) []string {
	if cfg.Env == "development" {
		return []string{"*"}
	}
	return nil
}
