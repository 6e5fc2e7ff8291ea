package license

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
)

// AttemptLimiter throttles failed validation attempts per caller
// identity with a sliding window. Once the window fills, the identity
// is blocked for the configured duration; a successful validation
// clears its slate.
type AttemptLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	blocked  map[string]time.Time

	maxAttempts int
	window      time.Duration
	blockFor    time.Duration

	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewAttemptLimiter constructs a limiter and starts its cleanup
// goroutine. Call Stop to release it.
func NewAttemptLimiter(maxAttempts int, window, blockFor time.Duration, logger *slog.Logger) *AttemptLimiter {
	l := &AttemptLimiter{
		attempts:    make(map[string][]time.Time),
		blocked:     make(map[string]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
		stopChan:    make(chan struct{}),
		logger:      logger.With(slog.String("component", "attempt_limiter")),
	}
	go l.cleanupLoop()
	return l
}

// SetClock replaces the time source. Test hook only.
func (l *AttemptLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow reports whether the identity may attempt a validation. A
// blocked identity gets ErrTooManyAttempts until the block lapses.
func (l *AttemptLimiter) Allow(ctx context.Context, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.blocked[identity]; ok {
		if now.Before(until) {
			return apperrors.ErrTooManyAttempts
		}
		delete(l.blocked, identity)
		delete(l.attempts, identity)
	}
	return nil
}

// RecordFailure notes a failed attempt and blocks the identity once
// the window holds maxAttempts failures.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.pruneLocked(identity, now)
	recent = append(recent, now)
	l.attempts[identity] = recent

	if len(recent) >= l.maxAttempts {
		until := now.Add(l.blockFor)
		l.blocked[identity] = until
		l.logger.WarnContext(ctx, "identity blocked after repeated failures",
			slog.String("identity", identity),
			slog.Int("failures", len(recent)),
			slog.Time("blocked_until", until),
		)
	}
}

// RecordSuccess clears the identity's failure history.
func (l *AttemptLimiter) RecordSuccess(ctx context.Context, identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, identity)
	delete(l.blocked, identity)
}

// Stop terminates the cleanup goroutine.
func (l *AttemptLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

// pruneLocked drops entries older than the window. Caller holds mu.
func (l *AttemptLimiter) pruneLocked(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	recent := l.attempts[identity][:0]
	for _, t := range l.attempts[identity] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (l *AttemptLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *AttemptLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for identity, until := range l.blocked {
		if now.After(until) {
			delete(l.blocked, identity)
			delete(l.attempts, identity)
		}
	}
	for identity := range l.attempts {
		if recent := l.pruneLocked(identity, now); len(recent) == 0 {
			delete(l.attempts, identity)
		} else {
			l.attempts[identity] = recent
		}
	}
}
