package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// tokenBytes is the entropy of a session token. 32 bytes is double the
// required 128-bit floor.
const tokenBytes = 32

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Lifetime is how long an issued token stays valid.
	Lifetime time.Duration

	// CleanupInterval is how often the janitor sweeps expired sessions
	// into tombstones. Zero disables the janitor.
	CleanupInterval time.Duration

	// TombstoneRetention is how long an expiry tombstone keeps
	// answering Expired before the janitor forgets the token entirely.
	TombstoneRetention time.Duration

	// SinglePerLicense revokes a license's previous sessions whenever a
	// new one is issued. Off by default; deployments opt in.
	SinglePerLicense bool
}

// Registry issues, resolves, and destroys session tokens. It is the
// only owner of session state; callers get value copies.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]domain.Session
	tombstones map[string]time.Time // token -> expiry instant, answers Expired

	opts   RegistryOptions
	logger *slog.Logger

	// now is swappable so tests can walk the clock across the expiry
	// boundary.
	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}

	// onChange reports the live-session delta, wired to the
	// sessions_active gauge.
	onChange func(delta int64)
	onPruned func(count int64)
}

// NewRegistry creates a Registry and starts its janitor.
func NewRegistry(opts RegistryOptions, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		sessions:   make(map[string]domain.Session),
		tombstones: make(map[string]time.Time),
		opts:       opts,
		logger:     logger.With(slog.String("component", "session_registry")),
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go r.janitor()
	}

	return r
}

// SetClock replaces the registry's time source. Tests only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetMetricsHooks wires the active-session and pruned counters.
func (r *Registry) SetMetricsHooks(onChange func(delta int64), onPruned func(count int64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = onChange
	r.onPruned = onPruned
}

// Issue mints a token for (key, address). Multiple live sessions per
// license are allowed unless the registry was built single-per-license.
func (r *Registry) Issue(ctx context.Context, key, address string) (domain.Session, error) {
	token, err := newToken()
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to mint session token: %w", err)
	}

	r.mu.Lock()
	now := r.now()

	var revoked int64
	if r.opts.SinglePerLicense {
		for t, s := range r.sessions {
			if s.LicenseKey == key {
				delete(r.sessions, t)
				revoked++
			}
		}
	}

	sess := domain.Session{
		Token:      token,
		LicenseKey: key,
		Address:    address,
		IssuedAt:   now,
		ExpiresAt:  now.Add(r.opts.Lifetime),
	}
	r.sessions[token] = sess
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(1 - revoked)
	}

	r.logger.InfoContext(ctx, "session issued",
		slog.String("token_prefix", TokenPrefix(token)),
		slog.String("address", address),
		slog.Time("expires_at", sess.ExpiresAt),
		slog.Int64("revoked_prior", revoked),
	)

	return sess, nil
}

// Resolve looks up a token presented from address. Anything but Valid
// is terminal for the token: expiry leaves a tombstone so the outcome
// repeats, a wrong address destroys the token outright.
func (r *Registry) Resolve(ctx context.Context, token, address string) (domain.Session, domain.ResolveOutcome) {
	r.mu.Lock()
	now := r.now()

	sess, live := r.sessions[token]
	if !live {
		_, buried := r.tombstones[token]
		r.mu.Unlock()
		if buried {
			return domain.Session{}, domain.ResolveExpired
		}
		return domain.Session{}, domain.ResolveNotFound
	}

	if !now.Before(sess.ExpiresAt) {
		delete(r.sessions, token)
		r.tombstones[token] = sess.ExpiresAt
		onChange := r.onChange
		r.mu.Unlock()
		if onChange != nil {
			onChange(-1)
		}
		r.logger.InfoContext(ctx, "session expired on resolve",
			slog.String("token_prefix", TokenPrefix(token)))
		return domain.Session{}, domain.ResolveExpired
	}

	if sess.Address != address {
		// A replay from the wrong address means the token leaked.
		// Destroy it so not even the original address can use it again.
		delete(r.sessions, token)
		onChange := r.onChange
		r.mu.Unlock()
		if onChange != nil {
			onChange(-1)
		}
		r.logger.WarnContext(ctx, "session address mismatch, token destroyed",
			slog.String("token_prefix", TokenPrefix(token)),
			slog.String("bound_address", sess.Address),
			slog.String("presented_address", address),
		)
		return domain.Session{}, domain.ResolveAddressMismatch
	}

	r.mu.Unlock()
	return sess, domain.ResolveValid
}

// Consume removes a token ahead of its natural expiry. Explicit logout
// and one-shot flows only; the privileged-operation leg never consumes
// on a successful resolve.
func (r *Registry) Consume(ctx context.Context, token string) error {
	r.mu.Lock()
	sess, live := r.sessions[token]
	if !live {
		_, buried := r.tombstones[token]
		r.mu.Unlock()
		if buried {
			return apperrors.ErrSessionExpired
		}
		return apperrors.ErrSessionNotFound
	}
	delete(r.sessions, token)
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(-1)
	}

	r.logger.InfoContext(ctx, "session consumed",
		slog.String("token_prefix", TokenPrefix(token)),
		slog.String("address", sess.Address),
	)
	return nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop halts the janitor. Sessions already issued remain resolvable
// until the process exits.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) janitor() {
	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			expired, forgotten := r.sweep()
			if expired > 0 || forgotten > 0 {
				r.logger.Debug("session sweep",
					slog.Int64("expired", expired),
					slog.Int64("tombstones_dropped", forgotten),
				)
			}
		}
	}
}

// sweep moves expired sessions to tombstones and drops tombstones past
// retention. Cheap comparisons only; the lock is never held across I/O.
func (r *Registry) sweep() (expired, forgotten int64) {
	r.mu.Lock()
	now := r.now()
	for token, sess := range r.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(r.sessions, token)
			r.tombstones[token] = sess.ExpiresAt
			expired++
		}
	}
	retention := r.opts.TombstoneRetention
	if retention > 0 {
		for token, at := range r.tombstones {
			if now.Sub(at) > retention {
				delete(r.tombstones, token)
				forgotten++
			}
		}
	}
	onChange := r.onChange
	onPruned := r.onPruned
	r.mu.Unlock()

	if expired > 0 && onChange != nil {
		onChange(-expired)
	}
	if expired+forgotten > 0 && onPruned != nil {
		onPruned(expired + forgotten)
	}
	return expired, forgotten
}

// newToken returns a URL-safe random token.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenPrefix returns a short digest of a token safe for logs. The raw
// token never appears in log output.
func TokenPrefix(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}
