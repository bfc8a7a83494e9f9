package scrape

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gramtrack/gramtrack/internal/config"
)

const (
	// hardFailThreshold is the failure count at which a credential leaves
	// active rotation until the auto-reset timer restores it.
	hardFailThreshold = 3

	// rateLimitedThreshold is the failure count at which a credential is
	// considered rate-limited for the purpose of AllRateLimited.
	rateLimitedThreshold = 2

	autoResetInterval = 5 * time.Minute
)

type credential struct {
	value       string
	failures    int
	lastFailure time.Time
	hardFailed  bool
}

// CookiePool rotates scraping credentials across failures. All state is
// process-local; mutations happen on the dispatcher goroutine and the
// auto-reset timer, so every method takes the pool lock.
type CookiePool struct {
	mu          sync.Mutex
	creds       []*credential
	current     int
	lastSwitch  time.Time
	switchDelay time.Duration
	resetWindow time.Duration
	logger      *slog.Logger

	now func() time.Time
}

// CredentialStatus is the diagnostic view of one credential.
type CredentialStatus struct {
	Index       int        `json:"index"`
	Active      bool       `json:"active"`
	Failures    int        `json:"failures"`
	HardFailed  bool       `json:"hard_failed"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}

// PoolStatus is the diagnostic view of the whole pool.
type PoolStatus struct {
	Size           int                `json:"size"`
	Current        int                `json:"current"`
	AllRateLimited bool               `json:"all_rate_limited"`
	Credentials    []CredentialStatus `json:"credentials"`
}

// NewCookiePool builds a pool from the configured credential list.
func NewCookiePool(cfg config.CookieConfig, logger *slog.Logger) *CookiePool {
	creds := make([]*credential, 0, len(cfg.Credentials))
	for _, v := range cfg.Credentials {
		creds = append(creds, &credential{value: v})
	}

	return &CookiePool{
		creds:       creds,
		switchDelay: cfg.SwitchDelay,
		resetWindow: cfg.ResetWindow,
		logger:      logger,
		now:         time.Now,
	}
}

// Current returns the active credential, or false when the pool is empty or
// every credential is hard-failed.
func (p *CookiePool) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return "", false
	}
	if c := p.creds[p.current]; !c.hardFailed {
		return c.value, true
	}

	// Current is hard-failed; look for any live credential.
	for i, c := range p.creds {
		if !c.hardFailed {
			p.current = i
			return c.value, true
		}
	}
	return "", false
}

// MarkFailure records a failure against the current credential, advances
// rotation past hard-failed credentials, and returns the suggested wait
// before the next attempt. The reason is logged, not interpreted.
func (p *CookiePool) MarkFailure(reason string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return p.switchDelay
	}

	now := p.now()
	c := p.creds[p.current]
	c.failures++
	c.lastFailure = now
	if c.failures >= hardFailThreshold {
		c.hardFailed = true
	}

	p.logger.Warn("credential failure",
		"index", p.current,
		"reason", reason,
		"failures", c.failures,
		"hard_failed", c.hardFailed)

	// Advance to the next non-hard-failed credential, wrapping once.
	for i := 1; i <= len(p.creds); i++ {
		next := (p.current + i) % len(p.creds)
		if !p.creds[next].hardFailed {
			if next != p.current {
				p.logger.Info("rotating credential", "from", p.current, "to", next)
			}
			p.current = next
			break
		}
	}

	wait := p.switchDelay
	if since := now.Sub(p.lastSwitch); since < p.switchDelay {
		wait = p.switchDelay - since + p.switchDelay
	}
	p.lastSwitch = now
	return wait
}

// MarkSuccess clears failure state on the current credential.
func (p *CookiePool) MarkSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return
	}
	c := p.creds[p.current]
	c.failures = 0
	c.hardFailed = false
}

// AllRateLimited reports whether every credential has accumulated enough
// recent failures to be considered rate-limited.
func (p *CookiePool) AllRateLimited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allRateLimitedLocked()
}

func (p *CookiePool) allRateLimitedLocked() bool {
	if len(p.creds) == 0 {
		return false
	}
	now := p.now()
	for _, c := range p.creds {
		if c.failures < rateLimitedThreshold {
			return false
		}
		if now.Sub(c.lastFailure) >= p.resetWindow {
			return false
		}
	}
	return true
}

// RetryAfter returns how long to wait until at least one credential's
// failure window expires: the max over credentials of
// (resetWindow - time since last failure).
func (p *CookiePool) RetryAfter() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var max time.Duration
	for _, c := range p.creds {
		if c.lastFailure.IsZero() {
			continue
		}
		if remaining := p.resetWindow - now.Sub(c.lastFailure); remaining > max {
			max = remaining
		}
	}
	return max
}

// Status returns a diagnostic snapshot of the pool.
func (p *CookiePool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := PoolStatus{
		Size:           len(p.creds),
		Current:        p.current,
		AllRateLimited: p.allRateLimitedLocked(),
	}
	for i, c := range p.creds {
		cs := CredentialStatus{
			Index:      i,
			Active:     i == p.current,
			Failures:   c.failures,
			HardFailed: c.hardFailed,
		}
		if !c.lastFailure.IsZero() {
			t := c.lastFailure
			cs.LastFailure = &t
		}
		status.Credentials = append(status.Credentials, cs)
	}
	return status
}

// StartAutoReset launches the background recovery timer: any credential
// whose last failure is older than the reset window regains a clean slate.
// Hard-fail is soft state; no credential is ever dropped permanently.
func (p *CookiePool) StartAutoReset(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(autoResetInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.resetExpired()
			}
		}
	}()
}

func (p *CookiePool) resetExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i, c := range p.creds {
		if c.failures == 0 {
			continue
		}
		if now.Sub(c.lastFailure) >= p.resetWindow {
			p.logger.Info("credential failure window expired, resetting", "index", i)
			c.failures = 0
			c.hardFailed = false
			c.lastFailure = time.Time{}
		}
	}
}
