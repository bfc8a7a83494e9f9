package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/gramtrack/gramtrack/internal/models"
)

// Analytics periodically materializes today's DailyMetric rows from the raw
// snapshot and reel-metric history, independently of tracking jobs. It only
// ever touches today's rows.
type Analytics struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *slog.Logger
}

// NewAnalytics builds the periodic daily-analytics runner. An interval of
// zero disables it.
func NewAnalytics(pipeline *Pipeline, interval time.Duration, logger *slog.Logger) *Analytics {
	return &Analytics{
		pipeline: pipeline,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the runner goroutine. It exits when ctx is cancelled.
func (a *Analytics) Start(ctx context.Context) {
	if a.interval <= 0 {
		a.logger.Info("daily analytics runner disabled")
		return
	}
	a.logger.Info("daily analytics runner started", "interval", a.interval.String())
	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.RunOnce()
			}
		}
	}()
}

// RunOnce refreshes today's DailyMetric row for every tracked profile.
// Per-profile failures are logged and do not stop the walk.
func (a *Analytics) RunOnce() {
	profiles, err := a.pipeline.stores.Profiles.ListAll()
	if err != nil {
		a.logger.Error("analytics: list profiles failed", "error", err)
		return
	}

	refreshed := 0
	for _, profile := range profiles {
		if err := a.refreshProfile(profile); err != nil {
			a.logger.Error("analytics: refresh failed",
				"profile_id", profile.ID,
				"username", profile.Username,
				"error", err)
			continue
		}
		refreshed++
	}
	a.logger.Info("analytics pass complete", "profiles", len(profiles), "refreshed", refreshed)
}

func (a *Analytics) refreshProfile(profile *models.Profile) error {
	p := a.pipeline

	// Only today's in-session history feeds the roll-up.
	dayStart := startOfDay(p.now().In(p.location))
	from := dayStart
	if s := profile.SessionStart(); s.After(from) {
		from = s
	}

	snaps, err := p.stores.Snapshots.GetSnapshotsSince(profile.ID, from)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		// Nothing tracked today; never fabricate a row.
		return nil
	}
	latest := snaps[len(snaps)-1]

	totals, err := a.reelGrowthSince(profile.ID, from)
	if err != nil {
		return err
	}

	return p.rollUpDaily(profile, latest, totals)
}

// reelGrowthSince recomputes the day's aggregated reel growth from the
// immutable metric history: per reel, the sum of positive run-to-run
// increases. A reel's first metric of the window contributes nothing.
func (a *Analytics) reelGrowthSince(profileID string, from time.Time) (growthTotals, error) {
	var totals growthTotals

	rows, err := a.pipeline.stores.Reels.ListReelMetricsSince(profileID, from)
	if err != nil {
		return totals, err
	}

	prev := make(map[int64]*models.ReelMetric)
	for _, m := range rows {
		if last, ok := prev[m.ReelID]; ok {
			if d := m.ViewCount - last.ViewCount; d > 0 {
				totals.views += d
			}
			if d := m.LikeCount - last.LikeCount; d > 0 {
				totals.likes += d
			}
			if d := m.CommentCount - last.CommentCount; d > 0 {
				totals.comments += d
			}
		}
		prev[m.ReelID] = m
	}
	return totals, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
