package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gramtrack/gramtrack/internal/config"
	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/scrape"
)

// rateLimitCounterDecay resets the consecutive rate-limit counter when the
// most recent rate-limit error is older than this.
const rateLimitCounterDecay = time.Hour

// Target identifies one tracked account.
type Target struct {
	Platform models.Platform `json:"platform"`
	Username string          `json:"username"`
}

// Key returns the dedup key for the target.
func (t Target) Key() string {
	return string(t.Platform) + ":" + t.Username
}

// Result is what a completed tracking job hands back to its caller.
type Result struct {
	Profile  *models.Profile  `json:"profile"`
	Snapshot *models.Snapshot `json:"snapshot"`
}

// Runner executes one tracking job end to end.
type Runner func(ctx context.Context, job *Job) (*Result, error)

// Job is one unit of tracking work.
type Job struct {
	Target
	TrackingID string
	UserID     string
	Immediate  bool
	AddedAt    time.Time

	future *Future
}

// Future resolves once its job reaches a terminal outcome. A job that is
// re-queued after a rate limit keeps its future pending.
type Future struct {
	done chan struct{}
	once sync.Once
	res  *Result
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(res *Result, err error) {
	f.once.Do(func() {
		f.res = res
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the job completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.res, f.err
	}
}

// Status is a diagnostic snapshot of the queue.
type Status struct {
	Size                  int           `json:"size"`
	InFlight              bool          `json:"in_flight"`
	InFlightTarget        string        `json:"in_flight_target,omitempty"`
	LastDispatch          *time.Time    `json:"last_dispatch,omitempty"`
	BaseSpacingMs         int64         `json:"base_spacing_ms"`
	EffectiveSpacingMs    int64         `json:"effective_spacing_ms"`
	ConsecutiveRateLimits int           `json:"consecutive_rate_limits"`
	Pending               []string      `json:"pending"`
}

// Queue is a process-wide, single-consumer work queue. At most one job runs
// at a time; consecutive dispatches are separated by at least the effective
// spacing, which grows exponentially under rate limiting.
type Queue struct {
	mu            sync.Mutex
	jobs          []*Job
	inFlight      *Job
	lastDispatch  time.Time
	consecutive   int
	lastRateLimit time.Time

	baseSpacing time.Duration
	maxBackoff  time.Duration

	runner Runner
	logger *slog.Logger
	kick   chan struct{}
	now    func() time.Time
}

// New constructs a queue. Start must be called before jobs are dispatched.
func New(cfg config.QueueConfig, runner Runner, logger *slog.Logger) *Queue {
	return &Queue{
		baseSpacing: cfg.BaseSpacing,
		maxBackoff:  cfg.MaxBackoff,
		runner:      runner,
		logger:      logger,
		kick:        make(chan struct{}, 1),
		now:         time.Now,
	}
}

// Add enqueues a tracking job and returns its future. When a non-completed
// job for the same target already exists (pending or in flight), that job's
// future is returned instead of enqueuing a duplicate.
func (q *Queue) Add(target Target, immediate bool, trackingID, userID string) *Future {
	q.mu.Lock()

	if q.inFlight != nil && q.inFlight.Key() == target.Key() {
		f := q.inFlight.future
		q.mu.Unlock()
		return f
	}
	for _, j := range q.jobs {
		if j.Key() == target.Key() {
			if immediate && !j.Immediate {
				j.Immediate = true
			}
			f := j.future
			q.mu.Unlock()
			return f
		}
	}

	job := &Job{
		Target:     target,
		TrackingID: trackingID,
		UserID:     userID,
		Immediate:  immediate,
		AddedAt:    q.now(),
		future:     newFuture(),
	}
	q.jobs = append(q.jobs, job)
	wasIdle := q.inFlight == nil && len(q.jobs) == 1
	q.mu.Unlock()

	q.logger.Info("job queued",
		"target", target.Key(),
		"immediate", immediate,
		"queue_size", q.Len())

	if immediate || wasIdle {
		q.Kick()
	}
	return job.future
}

// Kick wakes the dispatcher so it re-evaluates the queue.
func (q *Queue) Kick() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Status returns a diagnostic snapshot.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Status{
		Size:                  len(q.jobs),
		InFlight:              q.inFlight != nil,
		BaseSpacingMs:         q.baseSpacing.Milliseconds(),
		EffectiveSpacingMs:    q.effectiveSpacingLocked().Milliseconds(),
		ConsecutiveRateLimits: q.consecutive,
	}
	if q.inFlight != nil {
		s.InFlightTarget = q.inFlight.Key()
	}
	if !q.lastDispatch.IsZero() {
		t := q.lastDispatch
		s.LastDispatch = &t
	}
	for _, j := range q.sortedLocked() {
		s.Pending = append(s.Pending, j.Key())
	}
	return s
}

// Start launches the dispatcher goroutine. It exits when ctx is cancelled;
// queue contents are not persisted across restarts.
func (q *Queue) Start(ctx context.Context) {
	go q.dispatchLoop(ctx)
}

func (q *Queue) dispatchLoop(ctx context.Context) {
	for {
		q.mu.Lock()
		hasWork := len(q.jobs) > 0
		wait := q.dispatchDelayLocked()
		q.mu.Unlock()

		if !hasWork {
			select {
			case <-ctx.Done():
				return
			case <-q.kick:
				continue
			}
		}

		if wait > 0 {
			q.logger.Debug("dispatcher waiting", "wait", wait.Round(time.Millisecond).String())
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-q.kick:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		q.runNext(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runNext dispatches the highest-priority pending job, if spacing permits.
func (q *Queue) runNext(ctx context.Context) {
	q.mu.Lock()
	if q.inFlight != nil || len(q.jobs) == 0 || q.dispatchDelayLocked() > 0 {
		q.mu.Unlock()
		return
	}
	job := q.sortedLocked()[0]
	q.removeLocked(job)
	q.inFlight = job
	q.lastDispatch = q.now()
	q.mu.Unlock()

	q.logger.Info("dispatching job", "target", job.Key(), "immediate", job.Immediate)

	res, err := q.runner(ctx, job)

	q.mu.Lock()
	q.inFlight = nil
	switch {
	case err != nil && scrape.IsKind(err, scrape.KindRateLimited):
		q.consecutive++
		q.lastRateLimit = q.now()
		// Re-queue rather than reject; the future stays pending until a
		// terminal outcome.
		q.jobs = append(q.jobs, job)
		q.logger.Warn("job rate limited, re-queued",
			"target", job.Key(),
			"consecutive", q.consecutive,
			"effective_spacing", q.effectiveSpacingLocked().String())
	case err != nil:
		q.logger.Error("job failed", "target", job.Key(), "error", err)
		job.future.settle(nil, err)
	default:
		q.consecutive = 0
		q.logger.Info("job completed", "target", job.Key())
		job.future.settle(res, nil)
	}
	q.mu.Unlock()
}

// dispatchDelayLocked returns how long the dispatcher must still wait before
// the next job may start.
func (q *Queue) dispatchDelayLocked() time.Duration {
	if q.lastDispatch.IsZero() {
		return 0
	}
	elapsed := q.now().Sub(q.lastDispatch)
	if spacing := q.effectiveSpacingLocked(); elapsed < spacing {
		return spacing - elapsed
	}
	return 0
}

// effectiveSpacingLocked is baseSpacing doubled per consecutive rate-limit
// error, clamped to maxBackoff. The counter decays after an hour without a
// rate-limit error.
func (q *Queue) effectiveSpacingLocked() time.Duration {
	if q.consecutive > 0 && q.now().Sub(q.lastRateLimit) > rateLimitCounterDecay {
		q.consecutive = 0
	}
	spacing := q.baseSpacing
	for i := 0; i < q.consecutive; i++ {
		spacing *= 2
		if spacing >= q.maxBackoff {
			spacing = q.maxBackoff
			break
		}
	}
	if spacing < q.baseSpacing {
		spacing = q.baseSpacing
	}
	return spacing
}

// sortedLocked returns pending jobs in dispatch order: immediate first,
// FIFO by AddedAt within each group.
func (q *Queue) sortedLocked() []*Job {
	jobs := make([]*Job, len(q.jobs))
	copy(jobs, q.jobs)
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Immediate != jobs[j].Immediate {
			return jobs[i].Immediate
		}
		return jobs[i].AddedAt.Before(jobs[j].AddedAt)
	})
	return jobs
}

func (q *Queue) removeLocked(job *Job) {
	for i, j := range q.jobs {
		if j == job {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return
		}
	}
}
