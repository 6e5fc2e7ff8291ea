package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
)

// pin records which address asked to validate a hardware id.
type pin struct {
	address   string
	expiresAt time.Time
}

// Pins is the TTL map behind the two-phase validation pre-step: the
// client first pins its address to a hardware id, then /validate
// requires the pinned address to match the caller's. A pin is redeemed
// exactly once; a second validation needs a fresh pin.
type Pins struct {
	mu     sync.Mutex
	byHWID map[string]pin
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewPins creates a pin map whose entries live for ttl. cleanupInterval
// bounds how long a dead pin can linger; zero disables the sweeper.
func NewPins(ttl, cleanupInterval time.Duration, logger *slog.Logger) *Pins {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pins{
		byHWID: make(map[string]pin),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "address_pins")),
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go p.sweeper(cleanupInterval)
	}

	return p
}

// SetClock replaces the pin map's time source. Tests only.
func (p *Pins) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Issue pins address to hwid. A repeated request from the same client
// simply refreshes the pin; the latest address wins.
func (p *Pins) Issue(ctx context.Context, hwid, address string) time.Duration {
	p.mu.Lock()
	p.byHWID[hwid] = pin{address: address, expiresAt: p.now().Add(p.ttl)}
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "address pin issued",
		slog.String("address", address),
	)
	return p.ttl
}

// Redeem checks and consumes the pin for hwid. A missing or expired pin
// answers ErrNoActiveSession. A live pin for a different address
// answers ErrPinAddressMismatch and is left in place, mirroring how the
// one-shot consumption only happens once the caller proved it is the
// pinned address. On a match the pin is removed before the caller goes
// on to the authority, so the outcome of that call cannot resurrect it.
func (p *Pins) Redeem(ctx context.Context, hwid, address string) error {
	p.mu.Lock()
	entry, ok := p.byHWID[hwid]
	if !ok {
		p.mu.Unlock()
		return apperrors.ErrNoActiveSession
	}
	if !p.now().Before(entry.expiresAt) {
		delete(p.byHWID, hwid)
		p.mu.Unlock()
		return apperrors.ErrNoActiveSession
	}
	if entry.address != address {
		p.mu.Unlock()
		p.logger.WarnContext(ctx, "address pin mismatch",
			slog.String("pinned_address", entry.address),
			slog.String("presented_address", address),
		)
		return apperrors.ErrPinAddressMismatch
	}
	delete(p.byHWID, hwid)
	p.mu.Unlock()
	return nil
}

// Count returns the number of live pins.
func (p *Pins) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHWID)
}

// Stop halts the sweeper.
func (p *Pins) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pins) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			now := p.now()
			for hwid, entry := range p.byHWID {
				if !now.Before(entry.expiresAt) {
					delete(p.byHWID, hwid)
				}
			}
			p.mu.Unlock()
		}
	}
}
