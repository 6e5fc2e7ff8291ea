package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := NewTracker(time.Minute, testLogger(t))
	t.Cleanup(tr.Stop)
	return tr
}

func testJob(host string, ttl time.Duration) domain.RelayJob {
	now := time.Now().UTC()
	return domain.RelayJob{
		ID:        uuid.NewString(),
		Host:      host,
		Port:      443,
		Method:    "tcp",
		Duration:  int(ttl.Seconds()),
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestTrackerAddListRemove(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job := testJob("203.0.113.7", time.Minute)
	tr.Add(ctx, job)
	assert.Equal(t, 1, tr.Count())

	jobs := tr.List(ctx)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	assert.True(t, tr.Remove(ctx, job.ID))
	assert.False(t, tr.Remove(ctx, job.ID))
	assert.Zero(t, tr.Count())
}

func TestTrackerListNewestFirst(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	older := testJob("203.0.113.1", time.Minute)
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	newer := testJob("203.0.113.2", time.Minute)

	tr.Add(ctx, older)
	tr.Add(ctx, newer)

	jobs := tr.List(ctx)
	require.Len(t, jobs, 2)
	assert.Equal(t, newer.ID, jobs[0].ID)
	assert.Equal(t, older.ID, jobs[1].ID)
}

func TestTrackerClear(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Add(ctx, testJob("203.0.113.1", time.Minute))
	tr.Add(ctx, testJob("203.0.113.2", time.Minute))

	cleared := tr.Clear(ctx)
	assert.Len(t, cleared, 2)
	assert.Zero(t, tr.Count())
	assert.Empty(t, tr.Clear(ctx))
}

func TestTrackerSweepExpired(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	var mu sync.Mutex
	var notified []string
	tr.SetExpiryCallback(func(job domain.RelayJob) {
		mu.Lock()
		notified = append(notified, job.ID)
		mu.Unlock()
	})

	live := testJob("203.0.113.1", time.Hour)
	dead := testJob("203.0.113.2", time.Minute)
	tr.Add(ctx, live)
	tr.Add(ctx, dead)

	base := time.Now().UTC()
	tr.SetClock(func() time.Time { return base.Add(2 * time.Minute) })

	expired := tr.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, dead.ID, expired[0].ID)
	assert.Equal(t, 1, tr.Count())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{dead.ID}, notified)
}

func TestTrackerListIsASnapshot(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job := testJob("203.0.113.1", time.Minute)
	tr.Add(ctx, job)

	jobs := tr.List(ctx)
	jobs[0].Host = "mutated"

	again := tr.List(ctx)
	assert.Equal(t, "203.0.113.1", again[0].Host)
}
