package scheduler

import (
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/gramtrack/gramtrack/internal/config"
	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/queue"
)

type fakeProfileRepo struct {
	profiles []*models.Profile
	listErr  error
}

func (f *fakeProfileRepo) Create(p *models.Profile) error                 { return nil }
func (f *fakeProfileRepo) Update(p *models.Profile, bump bool) error      { return nil }
func (f *fakeProfileRepo) GetByTrackingID(id string) (*models.Profile, error) {
	return nil, nil
}
func (f *fakeProfileRepo) GetByUsername(platform models.Platform, username string, userID *string) (*models.Profile, error) {
	return nil, nil
}
func (f *fakeProfileRepo) ListByUsername(platform models.Platform, username string) ([]*models.Profile, error) {
	return nil, nil
}
func (f *fakeProfileRepo) ListAll() ([]*models.Profile, error) {
	return f.profiles, f.listErr
}
func (f *fakeProfileRepo) SetLastSnapshot(profileID string, snapshotID int64) error { return nil }
func (f *fakeProfileRepo) Delete(profileID string) error                            { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQueue() *queue.Queue {
	return queue.New(config.QueueConfig{
		BaseSpacing: time.Minute,
		MaxBackoff:  time.Hour,
	}, nil, testLogger())
}

func TestRefreshEnabled(t *testing.T) {
	tests := []struct {
		spec string
		want bool
	}{
		{"", false},
		{"off", false},
		{"*/30 * * * *", true},
		{"0 6 * * *", true},
	}
	for _, tt := range tests {
		if got := refreshEnabled(tt.spec); got != tt.want {
			t.Errorf("refreshEnabled(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(config.ScheduleConfig{
		Daily:    "not a cron spec",
		Timezone: "UTC",
	}, &fakeProfileRepo{}, testQueue(), testLogger())
	if err == nil {
		t.Fatal("expected error for invalid daily cron spec")
	}

	_, err = New(config.ScheduleConfig{
		Daily:    "0 6 * * *",
		Refresh:  "also not a spec",
		Timezone: "UTC",
	}, &fakeProfileRepo{}, testQueue(), testLogger())
	if err == nil {
		t.Fatal("expected error for invalid refresh cron spec")
	}
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New(config.ScheduleConfig{
		Daily:    "0 6 * * *",
		Timezone: "Neverland/Nowhere",
	}, &fakeProfileRepo{}, testQueue(), testLogger())
	if err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestEnqueueAll(t *testing.T) {
	owner := "user-1"
	repo := &fakeProfileRepo{profiles: []*models.Profile{
		{ID: "p1", Platform: models.PlatformInstagram, Username: "alice"},
		{ID: "p2", Platform: models.PlatformInstagram, Username: "bob", UserID: &owner},
		{ID: "p3", Platform: models.PlatformTwitter, Username: "alice"},
	}}
	q := testQueue()

	s, err := New(config.ScheduleConfig{
		Daily:    "0 6 * * *",
		Timezone: "UTC",
	}, repo, q, testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	count, err := s.EnqueueAll()
	if err != nil {
		t.Fatalf("EnqueueAll() error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if q.Len() != 3 {
		t.Errorf("queue size = %d, want 3", q.Len())
	}
}

func TestEnqueueAllDeduplicatesAcrossTicks(t *testing.T) {
	repo := &fakeProfileRepo{profiles: []*models.Profile{
		{ID: "p1", Platform: models.PlatformInstagram, Username: "alice"},
	}}
	q := testQueue()

	s, err := New(config.ScheduleConfig{
		Daily:    "0 6 * * *",
		Timezone: "UTC",
	}, repo, q, testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	s.EnqueueAll()
	s.EnqueueAll()

	if q.Len() != 1 {
		t.Errorf("queue size = %d, want 1 after duplicate ticks", q.Len())
	}
}

func TestEnqueueAllPropagatesListError(t *testing.T) {
	repo := &fakeProfileRepo{listErr: errors.New("db down")}

	s, err := New(config.ScheduleConfig{
		Daily:    "0 6 * * *",
		Timezone: "UTC",
	}, repo, testQueue(), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := s.EnqueueAll(); err == nil {
		t.Fatal("expected list error to propagate")
	}
}

func TestSchedulesReportsTriggers(t *testing.T) {
	s, err := New(config.ScheduleConfig{
		Daily:    "0 6 * * *",
		Refresh:  "*/30 * * * *",
		Timezone: "UTC",
	}, &fakeProfileRepo{}, testQueue(), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	s.Start()
	defer s.Stop()

	infos := s.Schedules()
	if len(infos) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(infos))
	}
	if infos[0].Name != "daily" || !infos[0].Enabled || infos[0].NextFire == nil {
		t.Errorf("daily schedule = %+v", infos[0])
	}
	if infos[1].Name != "refresh" || !infos[1].Enabled || infos[1].NextFire == nil {
		t.Errorf("refresh schedule = %+v", infos[1])
	}
}

func TestSchedulesOmitsNextFireForDisabledRefresh(t *testing.T) {
	s, err := New(config.ScheduleConfig{
		Daily:    "0 6 * * *",
		Refresh:  "off",
		Timezone: "UTC",
	}, &fakeProfileRepo{}, testQueue(), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	infos := s.Schedules()
	if infos[1].Enabled {
		t.Error("refresh should be disabled")
	}
	if infos[1].NextFire != nil {
		t.Error("disabled schedule must not report a next fire time")
	}
}
