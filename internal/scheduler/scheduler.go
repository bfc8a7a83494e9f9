package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gramtrack/gramtrack/internal/config"
	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/queue"
)

// Scheduler enqueues a non-immediate tracking job for every profile on the
// configured cron ticks. It never waits for job completion; processing is
// the queue's responsibility.
type Scheduler struct {
	cron     *cron.Cron
	profiles models.ProfileRepository
	queue    *queue.Queue
	cfg      config.ScheduleConfig
	location *time.Location
	logger   *slog.Logger

	dailyEntry   cron.EntryID
	refreshEntry cron.EntryID
}

// ScheduleInfo describes one configured trigger and its next firing time.
type ScheduleInfo struct {
	Name     string     `json:"name"`
	Spec     string     `json:"spec"`
	Enabled  bool       `json:"enabled"`
	NextFire *time.Time `json:"next_fire,omitempty"`
}

// New builds a scheduler evaluating cron expressions in cfg.Timezone.
func New(cfg config.ScheduleConfig, profiles models.ProfileRepository, q *queue.Queue, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		profiles: profiles,
		queue:    q,
		cfg:      cfg,
		location: loc,
		logger:   logger,
	}

	s.dailyEntry, err = s.cron.AddFunc(cfg.Daily, s.tick("daily"))
	if err != nil {
		return nil, fmt.Errorf("invalid DAILY_CRON_SCHEDULE %q: %w", cfg.Daily, err)
	}

	if refreshEnabled(cfg.Refresh) {
		s.refreshEntry, err = s.cron.AddFunc(cfg.Refresh, s.tick("refresh"))
		if err != nil {
			return nil, fmt.Errorf("invalid REFRESH_CRON_SCHEDULE %q: %w", cfg.Refresh, err)
		}
	}

	return s, nil
}

func refreshEnabled(spec string) bool {
	return spec != "" && spec != "off"
}

// Start begins firing the configured triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, info := range s.Schedules() {
		if info.Enabled && info.NextFire != nil {
			s.logger.Info("schedule armed",
				"name", info.Name,
				"spec", info.Spec,
				"tz", s.cfg.Timezone,
				"next_fire", info.NextFire.Format(time.RFC3339))
		}
	}
}

// Stop halts the triggers; a tick already in progress finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// Schedules reports the configured triggers and their next firing times.
func (s *Scheduler) Schedules() []ScheduleInfo {
	infos := []ScheduleInfo{
		{Name: "daily", Spec: s.cfg.Daily, Enabled: true},
		{Name: "refresh", Spec: s.cfg.Refresh, Enabled: refreshEnabled(s.cfg.Refresh)},
	}
	for i := range infos {
		if !infos[i].Enabled {
			continue
		}
		id := s.dailyEntry
		if infos[i].Name == "refresh" {
			id = s.refreshEntry
		}
		if entry := s.cron.Entry(id); entry.ID != 0 && !entry.Next.IsZero() {
			next := entry.Next
			infos[i].NextFire = &next
		}
	}
	return infos
}

func (s *Scheduler) tick(name string) func() {
	return func() {
		count, err := s.EnqueueAll()
		if err != nil {
			s.logger.Error("schedule tick failed", "name", name, "error", err)
			return
		}
		next := ""
		for _, info := range s.Schedules() {
			if info.Name == name && info.NextFire != nil {
				next = info.NextFire.Format(time.RFC3339)
			}
		}
		s.logger.Info("schedule tick",
			"name", name,
			"enqueued", count,
			"next_fire", next)
	}
}

// EnqueueAll enumerates all profiles and enqueues a non-immediate job for
// each. Also backs the manual /cron/trigger endpoint.
func (s *Scheduler) EnqueueAll() (int, error) {
	profiles, err := s.profiles.ListAll()
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}

	for _, p := range profiles {
		userID := ""
		if p.UserID != nil {
			userID = *p.UserID
		}
		s.queue.Add(queue.Target{Platform: p.Platform, Username: p.Username}, false, "", userID)
	}
	return len(profiles), nil
}
