package api

import (
	"log/slog"
	"net/http"

	"github.com/gramtrack/gramtrack/internal/scheduler"
)

// CronHandler exposes the schedules and the manual enqueue-all trigger.
type CronHandler struct {
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func NewCronHandler(s *scheduler.Scheduler, logger *slog.Logger) *CronHandler {
	return &CronHandler{scheduler: s, logger: logger}
}

// Trigger handles POST /cron/trigger: enqueue a job for every profile, same
// as the daily tick.
func (h *CronHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := h.scheduler.EnqueueAll()
	if err != nil {
		h.logger.Error("manual trigger failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "enqueue failed")
		return
	}

	h.logger.Info("manual cron trigger", "enqueued", count)
	writeJSON(w, h.logger, http.StatusAccepted, map[string]int{"enqueued": count})
}

// Schedule handles GET /cron/schedule.
func (h *CronHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"schedules": h.scheduler.Schedules(),
	})
}
