package api

import (
	"log/slog"
	"net/http"

	"github.com/gramtrack/gramtrack/internal/queue"
	"github.com/gramtrack/gramtrack/internal/scrape"
)

// QueueHandler exposes dispatcher diagnostics and the manual kick.
type QueueHandler struct {
	queue  *queue.Queue
	pool   *scrape.CookiePool
	logger *slog.Logger
}

func NewQueueHandler(q *queue.Queue, pool *scrape.CookiePool, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{queue: q, pool: pool, logger: logger}
}

// StatusResponse joins the queue snapshot with credential pool diagnostics.
type StatusResponse struct {
	Queue   queue.Status      `json:"queue"`
	Cookies scrape.PoolStatus `json:"cookies"`
}

// Status handles GET /queue/status.
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, StatusResponse{
		Queue:   h.queue.Status(),
		Cookies: h.pool.Status(),
	})
}

// Process handles POST /queue/process: wake the dispatcher so it re-evaluates
// the queue immediately. Spacing rules still apply.
func (h *QueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.queue.Kick()
	writeJSON(w, h.logger, http.StatusAccepted, map[string]interface{}{
		"kicked":     true,
		"queue_size": h.queue.Len(),
	})
}
