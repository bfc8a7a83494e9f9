package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/queue"
	"github.com/gramtrack/gramtrack/internal/scrape"
)

// ProfileHandler serves tracking registration and session reads.
type ProfileHandler struct {
	queue     *queue.Queue
	profiles  models.ProfileRepository
	snapshots models.SnapshotRepository
	daily     models.DailyMetricRepository
	logger    *slog.Logger
}

func NewProfileHandler(q *queue.Queue, profiles models.ProfileRepository, snapshots models.SnapshotRepository, daily models.DailyMetricRepository, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		queue:     q,
		profiles:  profiles,
		snapshots: snapshots,
		daily:     daily,
		logger:    logger,
	}
}

// TrackRequest registers a tracking and waits for its first run.
type TrackRequest struct {
	Platform   string `json:"platform"`
	Username   string `json:"username"`
	TrackingID string `json:"tracking_id"`
	UserID     string `json:"user_id"`
}

func parsePlatform(raw string) (models.Platform, bool) {
	switch raw {
	case "", string(models.PlatformInstagram):
		return models.PlatformInstagram, true
	case string(models.PlatformTwitter):
		return models.PlatformTwitter, true
	}
	return "", false
}

func validUsername(username string) bool {
	if username == "" || len(username) > 100 {
		return false
	}
	return !strings.ContainsAny(username, " /\\?#")
}

// Track handles POST /profiles. It enqueues an immediate job and blocks
// until the run reaches a terminal outcome.
func (h *ProfileHandler) Track(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	platform, ok := parsePlatform(req.Platform)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "unknown platform")
		return
	}
	req.Username = strings.TrimPrefix(strings.TrimSpace(req.Username), "@")
	if !validUsername(req.Username) {
		writeError(w, h.logger, http.StatusBadRequest, "invalid username")
		return
	}

	future := h.queue.Add(queue.Target{Platform: platform, Username: req.Username}, true, req.TrackingID, req.UserID)
	h.awaitJob(w, r, future)
}

// Refresh handles POST /profiles/{username}/refresh.
func (h *ProfileHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/profiles/")
	username := strings.TrimSuffix(rest, "/refresh")
	if username == rest || !validUsername(username) {
		writeError(w, h.logger, http.StatusNotFound, "not found")
		return
	}

	platform, ok := parsePlatform(r.URL.Query().Get("platform"))
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "unknown platform")
		return
	}

	future := h.queue.Add(queue.Target{Platform: platform, Username: username}, true, "", r.URL.Query().Get("user_id"))
	h.awaitJob(w, r, future)
}

func (h *ProfileHandler) awaitJob(w http.ResponseWriter, r *http.Request, future *queue.Future) {
	res, err := future.Wait(r.Context())
	if err != nil {
		switch {
		case r.Context().Err() != nil:
			writeError(w, h.logger, http.StatusGatewayTimeout, "tracking run did not complete in time")
		case scrape.IsKind(err, scrape.KindNotFound):
			writeError(w, h.logger, http.StatusNotFound, "profile not found upstream")
		case scrape.IsKind(err, scrape.KindConflict):
			writeError(w, h.logger, http.StatusConflict, err.Error())
		default:
			h.logger.Error("tracking run failed", "error", err)
			writeError(w, h.logger, http.StatusBadGateway, "tracking run failed")
		}
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

// TrackingStatusResponse is the session-scoped view of one tracking.
type TrackingStatusResponse struct {
	Profile  *models.Profile  `json:"profile"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	Delta    *models.Delta    `json:"delta,omitempty"`
}

// Tracking handles GET /profiles/tracking/{id} and its /daily sub-resource.
// All reads are session-scoped: rows from before the current session are
// invisible.
func (h *ProfileHandler) Tracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/profiles/tracking/")
	if strings.HasSuffix(rest, "/daily") {
		h.trackingDaily(w, r, strings.TrimSuffix(rest, "/daily"))
		return
	}

	trackingID := rest
	if trackingID == "" || strings.Contains(trackingID, "/") {
		writeError(w, h.logger, http.StatusNotFound, "not found")
		return
	}

	profile, err := h.profiles.GetByTrackingID(trackingID)
	if err != nil {
		h.logger.Error("load profile failed", "tracking_id", trackingID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
		return
	}
	if profile == nil {
		writeError(w, h.logger, http.StatusNotFound, "unknown tracking id")
		return
	}

	sessionStart := profile.SessionStart()
	resp := TrackingStatusResponse{Profile: profile}

	snaps, err := h.snapshots.GetSnapshotsSince(profile.ID, sessionStart)
	if err != nil {
		h.logger.Error("load snapshots failed", "tracking_id", trackingID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
		return
	}
	if len(snaps) > 0 {
		resp.Snapshot = snaps[len(snaps)-1]
	}

	resp.Delta, err = h.sessionDelta(profile, sessionStart)
	if err != nil {
		h.logger.Error("load delta failed", "tracking_id", trackingID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// sessionDelta returns the freshest growth view: synthesized from the latest
// DailyMetric when it is newer than the latest stored delta row, otherwise
// the delta row itself.
func (h *ProfileHandler) sessionDelta(profile *models.Profile, sessionStart time.Time) (*models.Delta, error) {
	delta, err := h.snapshots.GetLatestDeltaSince(profile.ID, sessionStart)
	if err != nil {
		return nil, err
	}

	latest, err := h.daily.GetLatestDailyMetric(profile.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && !latest.UpdatedAt.Before(sessionStart) {
		if delta == nil || latest.UpdatedAt.After(delta.CreatedAt) {
			return &models.Delta{
				ProfileID:     profile.ID,
				FollowersDiff: latest.FollowersDelta,
				FollowingDiff: latest.FollowingDelta,
				MediaDiff:     latest.MediaDelta,
				ReelsDiff:     latest.ReelsDelta,
				CreatedAt:     latest.UpdatedAt,
			}, nil
		}
	}
	return delta, nil
}

// trackingDaily handles GET /profiles/tracking/{id}/daily: the session's
// daily metric rows, oldest first.
func (h *ProfileHandler) trackingDaily(w http.ResponseWriter, r *http.Request, trackingID string) {
	if trackingID == "" || strings.Contains(trackingID, "/") {
		writeError(w, h.logger, http.StatusNotFound, "not found")
		return
	}

	profile, err := h.profiles.GetByTrackingID(trackingID)
	if err != nil {
		h.logger.Error("load profile failed", "tracking_id", trackingID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
		return
	}
	if profile == nil {
		writeError(w, h.logger, http.StatusNotFound, "unknown tracking id")
		return
	}

	metrics, err := h.daily.ListDailyMetricsSince(profile.ID, profile.SessionStart())
	if err != nil {
		h.logger.Error("load daily metrics failed", "tracking_id", trackingID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
		return
	}
	if metrics == nil {
		metrics = []*models.DailyMetric{}
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"profile_id": profile.ID,
		"daily":      metrics,
	})
}
