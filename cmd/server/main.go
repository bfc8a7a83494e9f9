package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gramtrack/gramtrack/internal/api"
	"github.com/gramtrack/gramtrack/internal/auth"
	"github.com/gramtrack/gramtrack/internal/cloudsql"
	"github.com/gramtrack/gramtrack/internal/config"
	"github.com/gramtrack/gramtrack/internal/database"
	"github.com/gramtrack/gramtrack/internal/logging"
	"github.com/gramtrack/gramtrack/internal/metrics"
	"github.com/gramtrack/gramtrack/internal/queue"
	"github.com/gramtrack/gramtrack/internal/scheduler"
	"github.com/gramtrack/gramtrack/internal/scrape"
	"github.com/gramtrack/gramtrack/internal/server"
	"github.com/gramtrack/gramtrack/internal/tracker"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting gramtrack")

	location, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "tz", cfg.Schedule.Timezone, "error", err)
		os.Exit(1)
	}

	// Supports both local DATABASE_URL and Cloud SQL unix sockets
	dbURL := cfg.Database.URL
	if dbURL == "" {
		dbURL, err = cloudsql.BuildDatabaseURL()
		if err != nil {
			logger.Error("failed to build database URL", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("database configuration", "config", cloudsql.GetConnectionConfig())

	logger.Info("connecting to database")
	dbCfg := database.DefaultConfig()
	dbCfg.URL = dbURL
	db, err := database.Connect(context.Background(), dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// Run pending migrations (non-fatal to allow app to start even if migrations fail)
	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}

	// Repositories
	profileRepo := database.NewPostgresProfileRepository(db)
	snapshotRepo := database.NewPostgresSnapshotRepository(db)
	dailyRepo := database.NewPostgresDailyMetricRepository(db, location)
	reelRepo := database.NewPostgresReelRepository(db)
	replyRepo := database.NewPostgresReplyRepository(db)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Credential pool + scraper client
	pool := scrape.NewCookiePool(cfg.Cookies, logger)
	scraper := scrape.NewClient(pool, logger)

	stores := tracker.Stores{
		Profiles:  profileRepo,
		Snapshots: snapshotRepo,
		Daily:     dailyRepo,
		Reels:     reelRepo,
		Replies:   replyRepo,
	}
	pipeline := tracker.NewPipeline(cfg.Tracker, scraper, stores, nil, collector, location, logger)

	q := queue.New(cfg.Queue, pipeline.Run, logger)

	sched, err := scheduler.New(cfg.Schedule, profileRepo, q, logger)
	if err != nil {
		logger.Error("failed to init scheduler", "error", err)
		os.Exit(1)
	}

	analytics := tracker.NewAnalytics(pipeline, cfg.Tracker.AnalyticsInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.StartAutoReset(ctx)
	q.Start(ctx)
	sched.Start()
	analytics.Start(ctx)

	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	mux := http.NewServeMux()
	api.SetupRoutes(mux, api.Deps{
		DB:        db,
		Queue:     q,
		Scheduler: sched,
		Pool:      pool,
		Profiles:  profileRepo,
		Snapshots: snapshotRepo,
		Daily:     dailyRepo,
		Collector: collector,
		Auth:      authConfig,
		Logger:    logger,
	})

	srv := server.New(cfg.Server, logger, api.Handler(mux, collector))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("gramtrack started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	sched.Stop()
	cancel()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
