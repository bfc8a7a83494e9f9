package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Schedule ScheduleConfig
	Cookies  CookieConfig
	Tracker  TrackerConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the relational store connection settings.
type DatabaseConfig struct {
	URL string
}

// QueueConfig controls the global job dispatcher.
type QueueConfig struct {
	BaseSpacing time.Duration
	MaxBackoff  time.Duration
}

// ScheduleConfig holds the cron expressions evaluated in Timezone.
// Refresh may be set to "off" to disable the refresh tick.
type ScheduleConfig struct {
	Daily    string
	Refresh  string
	Timezone string
}

// CookieConfig holds the scraping credentials loaded at process start.
type CookieConfig struct {
	Credentials []string
	SwitchDelay time.Duration
	ResetWindow time.Duration
}

// TrackerConfig holds tracking pipeline tunables.
type TrackerConfig struct {
	MirrorReels       bool
	ReelFetchDelay    time.Duration
	AnalyticsInterval time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultBaseSpacing = 5 * time.Minute
	defaultMaxBackoff  = 30 * time.Minute

	defaultDailySchedule   = "15 2 * * *"
	defaultRefreshSchedule = "@every 12h"
	defaultTimezone        = "Asia/Kolkata"

	defaultCookieSwitchDelay = 30 * time.Second
	defaultCookieResetWindow = 60 * time.Minute

	defaultReelFetchDelay    = 2 * time.Second
	defaultAnalyticsInterval = 30 * time.Minute
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Queue: QueueConfig{
			BaseSpacing: defaultBaseSpacing,
			MaxBackoff:  defaultMaxBackoff,
		},
		Schedule: ScheduleConfig{
			Daily:    getEnv("DAILY_CRON_SCHEDULE", defaultDailySchedule),
			Refresh:  getEnv("REFRESH_CRON_SCHEDULE", defaultRefreshSchedule),
			Timezone: getEnv("TZ", defaultTimezone),
		},
		Cookies: CookieConfig{
			Credentials: loadCookieCredentials(),
			SwitchDelay: defaultCookieSwitchDelay,
			ResetWindow: defaultCookieResetWindow,
		},
		Tracker: TrackerConfig{
			ReelFetchDelay:    defaultReelFetchDelay,
			AnalyticsInterval: defaultAnalyticsInterval,
		},
	}

	if v := os.Getenv("MIN_TIME_BETWEEN_JOBS_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return Config{}, fmt.Errorf("invalid MIN_TIME_BETWEEN_JOBS_MS: must be a non-negative integer")
		}
		cfg.Queue.BaseSpacing = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("MAX_BACKOFF_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return Config{}, fmt.Errorf("invalid MAX_BACKOFF_MS: must be a non-negative integer")
		}
		cfg.Queue.MaxBackoff = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("ANALYTICS_INTERVAL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes < 0 {
			return Config{}, fmt.Errorf("invalid ANALYTICS_INTERVAL_MINUTES: must be a non-negative integer")
		}
		cfg.Tracker.AnalyticsInterval = time.Duration(minutes) * time.Minute
	}

	if v := os.Getenv("DOWNLOAD_REELS_TO_R2"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DOWNLOAD_REELS_TO_R2: must be a boolean")
		}
		cfg.Tracker.MirrorReels = b
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid TZ %q: %w", cfg.Schedule.Timezone, err)
	}

	return cfg, nil
}

// loadCookieCredentials reads scraping credentials from either
// INSTAGRAM_COOKIES_JSON (a JSON array of cookie strings) or the numbered
// INSTAGRAM_COOKIES / INSTAGRAM_COOKIES_2 / ... variables.
func loadCookieCredentials() []string {
	if raw := os.Getenv("INSTAGRAM_COOKIES_JSON"); raw != "" {
		var creds []string
		if err := json.Unmarshal([]byte(raw), &creds); err == nil {
			out := make([]string, 0, len(creds))
			for _, c := range creds {
				if c != "" {
					out = append(out, c)
				}
			}
			return out
		}
	}

	var creds []string
	if first := os.Getenv("INSTAGRAM_COOKIES"); first != "" {
		creds = append(creds, first)
	}
	for n := 2; ; n++ {
		v := os.Getenv(fmt.Sprintf("INSTAGRAM_COOKIES_%d", n))
		if v == "" {
			break
		}
		creds = append(creds, v)
	}
	return creds
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
