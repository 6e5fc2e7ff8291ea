package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// Tracker is the in-memory ledger of relay jobs believed to be running
// downstream. Jobs leave the ledger on an explicit stop, a stopall, or
// when their requested duration elapses.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]domain.RelayJob

	now       func() time.Time
	onExpired func(job domain.RelayJob)

	stopChan chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewTracker constructs a tracker and starts its expiry sweeper.
// Call Stop to release it.
func NewTracker(sweepInterval time.Duration, logger *slog.Logger) *Tracker {
	t := &Tracker{
		jobs:     make(map[string]domain.RelayJob),
		now:      time.Now,
		stopChan: make(chan struct{}),
		logger:   logger.With(slog.String("component", "job_tracker")),
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	go t.sweeper(sweepInterval)
	return t
}

// SetClock replaces the time source. Test hook only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// SetExpiryCallback registers a function invoked for each job the
// sweeper removes. Called without the tracker lock held.
func (t *Tracker) SetExpiryCallback(fn func(job domain.RelayJob)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpired = fn
}

// Add records a job.
func (t *Tracker) Add(ctx context.Context, job domain.RelayJob) {
	t.mu.Lock()
	t.jobs[job.ID] = job
	count := len(t.jobs)
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "job tracked",
		slog.String("job_id", job.ID),
		slog.String("host", job.Host),
		slog.Int("port", job.Port),
		slog.String("method", job.Method),
		slog.Int("active_jobs", count),
	)
}

// Remove drops a job by id, reporting whether it was tracked.
func (t *Tracker) Remove(ctx context.Context, id string) bool {
	t.mu.Lock()
	_, existed := t.jobs[id]
	delete(t.jobs, id)
	t.mu.Unlock()

	if existed {
		t.logger.InfoContext(ctx, "job removed", slog.String("job_id", id))
	}
	return existed
}

// Clear drops every tracked job and returns what was removed.
func (t *Tracker) Clear(ctx context.Context) []domain.RelayJob {
	t.mu.Lock()
	cleared := make([]domain.RelayJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		cleared = append(cleared, job)
	}
	t.jobs = make(map[string]domain.RelayJob)
	t.mu.Unlock()

	if len(cleared) > 0 {
		t.logger.InfoContext(ctx, "all jobs cleared", slog.Int("count", len(cleared)))
	}
	return cleared
}

// List returns a snapshot of active jobs, newest first.
func (t *Tracker) List(ctx context.Context) []domain.RelayJob {
	t.mu.RLock()
	jobs := make([]domain.RelayJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		jobs = append(jobs, job)
	}
	t.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// Count returns the number of tracked jobs.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

// Stop terminates the sweeper goroutine.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

func (t *Tracker) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Sweep removes jobs whose requested duration has elapsed and fires
// the expiry callback for each outside the lock. The sweeper calls it
// on its interval; callers may run it eagerly.
func (t *Tracker) Sweep() []domain.RelayJob {
	t.mu.Lock()
	now := t.now()
	var expired []domain.RelayJob
	for id, job := range t.jobs {
		if now.After(job.ExpiresAt) {
			expired = append(expired, job)
			delete(t.jobs, id)
		}
	}
	callback := t.onExpired
	t.mu.Unlock()

	for _, job := range expired {
		t.logger.Info("job expired",
			slog.String("job_id", job.ID),
			slog.Time("expires_at", job.ExpiresAt),
		)
		if callback != nil {
			callback(job)
		}
	}
	return expired
}
