package config

import (
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Queue.BaseSpacing != defaultBaseSpacing {
		t.Errorf("expected default base spacing %v, got %v", defaultBaseSpacing, cfg.Queue.BaseSpacing)
	}
	if cfg.Queue.MaxBackoff != defaultMaxBackoff {
		t.Errorf("expected default max backoff %v, got %v", defaultMaxBackoff, cfg.Queue.MaxBackoff)
	}
	if cfg.Schedule.Daily != defaultDailySchedule {
		t.Errorf("expected default daily schedule %q, got %q", defaultDailySchedule, cfg.Schedule.Daily)
	}
	if cfg.Schedule.Refresh != defaultRefreshSchedule {
		t.Errorf("expected default refresh schedule %q, got %q", defaultRefreshSchedule, cfg.Schedule.Refresh)
	}
	if cfg.Schedule.Timezone != defaultTimezone {
		t.Errorf("expected default timezone %q, got %q", defaultTimezone, cfg.Schedule.Timezone)
	}
	if cfg.Tracker.ReelFetchDelay != defaultReelFetchDelay {
		t.Errorf("expected default reel fetch delay %v, got %v", defaultReelFetchDelay, cfg.Tracker.ReelFetchDelay)
	}
	if cfg.Tracker.MirrorReels {
		t.Error("expected reel mirroring disabled by default")
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"PORT":                     "9090",
		"MIN_TIME_BETWEEN_JOBS_MS": "1500",
		"MAX_BACKOFF_MS":           "60000",
		"DAILY_CRON_SCHEDULE":      "0 3 * * *",
		"REFRESH_CRON_SCHEDULE":    "@every 6h",
		"TZ":                       "Europe/Berlin",
		"DOWNLOAD_REELS_TO_R2":     "true",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Queue.BaseSpacing != 1500*time.Millisecond {
		t.Errorf("expected base spacing 1.5s, got %v", cfg.Queue.BaseSpacing)
	}
	if cfg.Queue.MaxBackoff != time.Minute {
		t.Errorf("expected max backoff 1m, got %v", cfg.Queue.MaxBackoff)
	}
	if cfg.Schedule.Daily != "0 3 * * *" {
		t.Errorf("expected overridden daily schedule, got %q", cfg.Schedule.Daily)
	}
	if cfg.Schedule.Timezone != "Europe/Berlin" {
		t.Errorf("expected overridden timezone, got %q", cfg.Schedule.Timezone)
	}
	if !cfg.Tracker.MirrorReels {
		t.Error("expected reel mirroring enabled")
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level debug, got %v", cfg.Logging.Level)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"MIN_TIME_BETWEEN_JOBS_MS":    "-1",
		"MAX_BACKOFF_MS":              "abc",
		"DOWNLOAD_REELS_TO_R2":        "maybe",
		"ANALYTICS_INTERVAL_MINUTES":  "-5",
		"SERVER_READ_TIMEOUT_SECONDS": "3.5",
		"TZ":                          "Neverland/Nowhere",
		"LOG_LEVEL":                   "verbose",
		"LOG_FORMAT":                  "xml",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestLoadCookieCredentialsNumbered(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("INSTAGRAM_COOKIES", "sessionid=a")
	t.Setenv("INSTAGRAM_COOKIES_2", "sessionid=b")
	t.Setenv("INSTAGRAM_COOKIES_3", "sessionid=c")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.Cookies.Credentials) != 3 {
		t.Fatalf("expected 3 credentials, got %d", len(cfg.Cookies.Credentials))
	}
	if cfg.Cookies.Credentials[1] != "sessionid=b" {
		t.Errorf("unexpected second credential %q", cfg.Cookies.Credentials[1])
	}
}

func TestLoadCookieCredentialsNumberedGapStops(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("INSTAGRAM_COOKIES", "sessionid=a")
	t.Setenv("INSTAGRAM_COOKIES_3", "sessionid=c")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.Cookies.Credentials) != 1 {
		t.Fatalf("expected numbering to stop at the gap, got %d credentials", len(cfg.Cookies.Credentials))
	}
}

func TestLoadCookieCredentialsJSON(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("INSTAGRAM_COOKIES_JSON", `["sessionid=x", "", "sessionid=y"]`)
	t.Setenv("INSTAGRAM_COOKIES", "sessionid=ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.Cookies.Credentials) != 2 {
		t.Fatalf("expected JSON credentials to win with blanks dropped, got %d", len(cfg.Cookies.Credentials))
	}
	if cfg.Cookies.Credentials[0] != "sessionid=x" || cfg.Cookies.Credentials[1] != "sessionid=y" {
		t.Errorf("unexpected credentials %v", cfg.Cookies.Credentials)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"MIN_TIME_BETWEEN_JOBS_MS",
		"MAX_BACKOFF_MS",
		"ANALYTICS_INTERVAL_MINUTES",
		"DAILY_CRON_SCHEDULE",
		"REFRESH_CRON_SCHEDULE",
		"TZ",
		"DOWNLOAD_REELS_TO_R2",
		"INSTAGRAM_COOKIES",
		"INSTAGRAM_COOKIES_2",
		"INSTAGRAM_COOKIES_3",
		"INSTAGRAM_COOKIES_JSON",
		"DATABASE_URL",
		"LOG_LEVEL",
		"LOG_FORMAT",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
