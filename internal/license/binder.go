package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// Binder decides whether a validation attempt may proceed: it checks
// the local record, enforces the first-come binding to (hardware,
// address), and re-confirms with the external authority on every
// attempt. Local checks run first so a stolen key from the wrong
// machine never generates authority traffic.
type Binder struct {
	store     Store
	authority Authority
	logger    *slog.Logger
}

// NewBinder constructs a Binder.
func NewBinder(store Store, authority Authority, logger *slog.Logger) *Binder {
	return &Binder{
		store:     store,
		authority: authority,
		logger:    logger.With(slog.String("component", "binder")),
	}
}

// Validate runs the full binding decision for one attempt and returns
// the (possibly freshly bound) license on success.
//
// An unbound key is confirmed with the authority before the binding is
// written, so a rejected key never occupies the slot. If two first
// attempts race, the loser of the bind falls through to the bound-key
// path and is accepted only when it presented the same identity.
func (b *Binder) Validate(ctx context.Context, key, hardwareID, address string) (domain.License, error) {
	lic, err := b.store.Get(ctx, key)
	if err != nil {
		return domain.License{}, err
	}

	if lic.Status != domain.LicenseStatusActive {
		return domain.License{}, fmt.Errorf("%w: status %s", apperrors.ErrLicenseInactive, lic.Status)
	}

	if lic.Bound() {
		return b.validateBound(ctx, lic, hardwareID, address)
	}

	// First activation: the authority gets the final word before the
	// slot is taken.
	if err := b.authority.Confirm(ctx, key, hardwareID); err != nil {
		return domain.License{}, err
	}

	bound, err := b.store.Bind(ctx, key, hardwareID, address)
	if err != nil {
		if errors.Is(err, ErrAlreadyBound) {
			// Lost the first-activation race; judge this attempt
			// against whoever won.
			return b.validateBound(ctx, bound, hardwareID, address)
		}
		return domain.License{}, err
	}

	b.logger.InfoContext(ctx, "license bound",
		slog.String("license_key", MaskLicenseKey(key)),
		slog.String("license_hash", HashLicenseKey(key)),
		slog.String("address", address),
	)
	return bound, nil
}

func (b *Binder) validateBound(ctx context.Context, lic domain.License, hardwareID, address string) (domain.License, error) {
	if lic.HardwareID != hardwareID {
		b.logger.WarnContext(ctx, "hardware mismatch on bound license",
			slog.String("license_hash", HashLicenseKey(lic.Key)),
			slog.String("address", address),
		)
		return domain.License{}, apperrors.ErrHardwareMismatch
	}
	if lic.Address != address {
		b.logger.WarnContext(ctx, "address mismatch on bound license",
			slog.String("license_hash", HashLicenseKey(lic.Key)),
			slog.String("bound_address", lic.Address),
			slog.String("address", address),
		)
		return domain.License{}, apperrors.ErrAddressMismatch
	}

	// Identity matches the binding; the authority still re-confirms so
	// a key revoked upstream stops working here too.
	if err := b.authority.Confirm(ctx, lic.Key, hardwareID); err != nil {
		return domain.License{}, err
	}

	return lic, nil
}
