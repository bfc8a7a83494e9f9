package api

import (
	"database/sql"
	"net/http"
	"strings"

	"log/slog"

	"github.com/gramtrack/gramtrack/internal/auth"
	"github.com/gramtrack/gramtrack/internal/metrics"
	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/queue"
	"github.com/gramtrack/gramtrack/internal/scheduler"
	"github.com/gramtrack/gramtrack/internal/scrape"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	DB        *sql.DB
	Queue     *queue.Queue
	Scheduler *scheduler.Scheduler
	Pool      *scrape.CookiePool
	Profiles  models.ProfileRepository
	Snapshots models.SnapshotRepository
	Daily     models.DailyMetricRepository
	Collector *metrics.Collector
	Auth      auth.Config
	Logger    *slog.Logger
}

// SetupRoutes configures all API routes.
func SetupRoutes(mux *http.ServeMux, deps Deps) {
	profileHandler := NewProfileHandler(deps.Queue, deps.Profiles, deps.Snapshots, deps.Daily, deps.Logger)
	queueHandler := NewQueueHandler(deps.Queue, deps.Pool, deps.Logger)
	cronHandler := NewCronHandler(deps.Scheduler, deps.Logger)
	authHandler := NewAuthHandler(deps.Auth, deps.Logger)
	healthHandler := NewHealthHandler(deps.DB, deps.Logger)

	authMiddleware := auth.AuthMiddleware(deps.Auth)

	// Registration and reads (public).
	mux.HandleFunc("/profiles", profileHandler.Track)
	mux.HandleFunc("/profiles/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/profiles/tracking/") {
			profileHandler.Tracking(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/refresh") {
			profileHandler.Refresh(w, r)
			return
		}
		http.NotFound(w, r)
	})

	// Diagnostics (public read, authenticated mutation).
	mux.HandleFunc("/queue/status", queueHandler.Status)
	mux.HandleFunc("/queue/process", func(w http.ResponseWriter, r *http.Request) {
		authMiddleware(http.HandlerFunc(queueHandler.Process)).ServeHTTP(w, r)
	})
	mux.HandleFunc("/cron/schedule", cronHandler.Schedule)
	mux.HandleFunc("/cron/trigger", func(w http.ResponseWriter, r *http.Request) {
		authMiddleware(http.HandlerFunc(cronHandler.Trigger)).ServeHTTP(w, r)
	})

	mux.HandleFunc("/auth/login", authHandler.Login)
	mux.HandleFunc("/healthz", healthHandler.Healthz)
	mux.Handle("/metrics", deps.Collector.Handler())
}

// Handler wraps the mux with request instrumentation.
func Handler(mux *http.ServeMux, collector *metrics.Collector) http.Handler {
	return collector.InstrumentHandler(mux)
}
