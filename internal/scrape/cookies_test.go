package scrape

import (
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/gramtrack/gramtrack/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T, creds ...string) (*CookiePool, *time.Time) {
	t.Helper()
	pool := NewCookiePool(config.CookieConfig{
		Credentials: creds,
		SwitchDelay: 30 * time.Second,
		ResetWindow: 60 * time.Minute,
	}, testLogger())

	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return clock }
	return pool, &clock
}

func TestCurrentEmptyPool(t *testing.T) {
	pool, _ := newTestPool(t)
	if _, ok := pool.Current(); ok {
		t.Error("expected no credential from an empty pool")
	}
}

func TestMarkFailureRotates(t *testing.T) {
	pool, _ := newTestPool(t, "a", "b", "c")

	pool.MarkFailure("rate_limit")

	cur, ok := pool.Current()
	if !ok || cur != "b" {
		t.Errorf("expected rotation to b, got %q ok=%v", cur, ok)
	}
}

func TestHardFailAfterThreeFailures(t *testing.T) {
	pool, _ := newTestPool(t, "a", "b")

	// Fail 'a' three times; rotation bounces back each round.
	for i := 0; i < 3; i++ {
		pool.MarkFailure("auth_failed") // fails current, advances
		pool.MarkFailure("auth_failed") // fails the other, advances back
	}

	status := pool.Status()
	if !status.Credentials[0].HardFailed || !status.Credentials[1].HardFailed {
		t.Fatalf("expected both credentials hard-failed, got %+v", status.Credentials)
	}
	if _, ok := pool.Current(); ok {
		t.Error("expected no live credential when all are hard-failed")
	}
}

func TestMarkSuccessClearsFailures(t *testing.T) {
	pool, _ := newTestPool(t, "a")

	pool.MarkFailure("rate_limit")
	pool.MarkFailure("rate_limit")
	pool.MarkSuccess()

	status := pool.Status()
	if status.Credentials[0].Failures != 0 {
		t.Errorf("expected failures cleared, got %d", status.Credentials[0].Failures)
	}
	if status.AllRateLimited {
		t.Error("pool should not be rate-limited after a success")
	}
}

func TestAllRateLimited(t *testing.T) {
	pool, _ := newTestPool(t, "a", "b")

	if pool.AllRateLimited() {
		t.Fatal("fresh pool reported rate-limited")
	}

	// Two failures per credential within the window.
	pool.MarkFailure("rate_limit")
	pool.MarkFailure("rate_limit")
	if pool.AllRateLimited() {
		t.Fatal("one failure each should not trip the threshold")
	}
	pool.MarkFailure("rate_limit")
	pool.MarkFailure("rate_limit")

	if !pool.AllRateLimited() {
		t.Error("expected pool rate-limited at two recent failures per credential")
	}
}

func TestAllRateLimitedExpiresWithWindow(t *testing.T) {
	pool, clock := newTestPool(t, "a")

	pool.MarkFailure("rate_limit")
	pool.MarkFailure("rate_limit")
	if !pool.AllRateLimited() {
		t.Fatal("expected rate-limited inside the window")
	}

	*clock = clock.Add(61 * time.Minute)
	if pool.AllRateLimited() {
		t.Error("expected window expiry to clear the rate-limited state")
	}
}

func TestRetryAfter(t *testing.T) {
	pool, clock := newTestPool(t, "a")

	pool.MarkFailure("rate_limit")
	*clock = clock.Add(20 * time.Minute)

	got := pool.RetryAfter()
	if got != 40*time.Minute {
		t.Errorf("RetryAfter() = %v, want 40m", got)
	}
}

func TestResetExpiredRestoresHardFailed(t *testing.T) {
	pool, clock := newTestPool(t, "a")

	for i := 0; i < 3; i++ {
		pool.MarkFailure("auth_failed")
	}
	if _, ok := pool.Current(); ok {
		t.Fatal("expected credential hard-failed")
	}

	*clock = clock.Add(61 * time.Minute)
	pool.resetExpired()

	cur, ok := pool.Current()
	if !ok || cur != "a" {
		t.Errorf("expected credential restored after window, got %q ok=%v", cur, ok)
	}
	if pool.Status().Credentials[0].Failures != 0 {
		t.Error("expected failure count reset")
	}
}
