package services

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/internal/infrastructure"
	"github.com/MasterDev782/Hosting/internal/license"
	"github.com/MasterDev782/Hosting/internal/session"
	v1 "github.com/MasterDev782/Hosting/pkg/contracts/api/v1"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// LicenseValidator runs the binding decision for one validation
// attempt. *license.Binder is the production implementation.
type LicenseValidator interface {
	Validate(ctx context.Context, key, hardwareID, address string) (domain.License, error)
}

// BindingReader reports the operator-visible state of a license
// record.
type BindingReader interface {
	Status(ctx context.Context, key string) (domain.BindingStatus, error)
}

// LicenseService implements the two-phase validation flow: an address
// pin opened by RequestSession, then Validate redeeming the pin,
// checking the license, and minting a session token.
type LicenseService struct {
	validator LicenseValidator
	bindings  BindingReader
	registry  *session.Registry
	pins      *session.Pins
	limiter   *license.AttemptLimiter
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger
}

// NewLicenseService wires the validation flow together. metrics may be
// nil in tests.
func NewLicenseService(
	validator LicenseValidator,
	bindings BindingReader,
	registry *session.Registry,
	pins *session.Pins,
	limiter *license.AttemptLimiter,
	metrics *infrastructure.BusinessMetrics,
	logger *slog.Logger,
) *LicenseService {
	return &LicenseService{
		validator: validator,
		bindings:  bindings,
		registry:  registry,
		pins:      pins,
		limiter:   limiter,
		metrics:   metrics,
		logger:    logger.With(slog.String("service", "license")),
	}
}

// RequestSession pins the caller's address to the presented hardware
// id, opening the validation window. Always succeeds for well-formed
// input; a fresh request supersedes any earlier pin for the hardware.
func (s *LicenseService) RequestSession(ctx context.Context, hardwareID, address string) *v1.SessionResponse {
	ttl := s.pins.Issue(ctx, hardwareID, address)

	if s.metrics != nil {
		s.metrics.PinsIssued.Add(ctx, 1)
	}
	s.logger.InfoContext(ctx, "address pinned",
		slog.String("address", address),
	)

	return &v1.SessionResponse{
		Status:    "success",
		Message:   "session window opened",
		ExpiresIn: int(ttl.Seconds()),
	}
}

// Validate exchanges a license key and hardware id for a session
// token. The caller must hold a live address pin from RequestSession;
// the pin is consumed whatever the license verdict turns out to be.
func (s *LicenseService) Validate(ctx context.Context, req v1.ValidateRequest, address string) (*v1.ValidateResponse, error) {
	// Both identities gate the attempt: rotating addresses does not
	// reset the budget for a fixed hardware id, and vice versa.
	if err := s.allowAttempt(ctx, req.HardwareID, address); err != nil {
		if s.metrics != nil {
			s.metrics.ValidationAttemptsBlocked.Add(ctx, 1)
		}
		return nil, err
	}

	if err := s.pins.Redeem(ctx, req.HardwareID, address); err != nil {
		s.recordFailure(ctx, req.HardwareID, address)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PinsRedeemed.Add(ctx, 1)
	}

	start := time.Now()
	lic, err := s.validator.Validate(ctx, req.LicenseKey, req.HardwareID, address)
	if s.metrics != nil {
		infrastructure.RecordValidationMetrics(ctx, s.metrics, time.Since(start), err == nil, err)
	}
	if err != nil {
		s.recordFailure(ctx, req.HardwareID, address)
		s.logger.WarnContext(ctx, "validation rejected",
			slog.String("license_key", license.MaskLicenseKey(req.LicenseKey)),
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	sess, err := s.registry.Issue(ctx, lic.Key, address)
	if err != nil {
		return nil, err
	}
	s.limiter.RecordSuccess(ctx, address)
	s.limiter.RecordSuccess(ctx, req.HardwareID)

	// sessions_active is owned by the registry's metrics hook; only
	// the issuance counter belongs to this layer.
	if s.metrics != nil {
		s.metrics.SessionsIssued.Add(ctx, 1)
	}
	s.logger.InfoContext(ctx, "session issued",
		slog.String("license_key", license.MaskLicenseKey(lic.Key)),
		slog.String("license_hash", license.HashLicenseKey(lic.Key)),
		slog.String("token_prefix", session.TokenPrefix(sess.Token)),
		slog.String("address", address),
		slog.Time("expires_at", sess.ExpiresAt),
	)

	return &v1.ValidateResponse{
		Status:       "success",
		SessionToken: sess.Token,
		ExpiresIn:    int(sess.ExpiresAt.Sub(sess.IssuedAt).Seconds()),
	}, nil
}

// allowAttempt checks the limiter under both caller identities; a
// block on either one denies the attempt.
func (s *LicenseService) allowAttempt(ctx context.Context, hardwareID, address string) error {
	if err := s.limiter.Allow(ctx, address); err != nil {
		return err
	}
	return s.limiter.Allow(ctx, hardwareID)
}

func (s *LicenseService) recordFailure(ctx context.Context, hardwareID, address string) {
	s.limiter.RecordFailure(ctx, address)
	s.limiter.RecordFailure(ctx, hardwareID)
}

// Logout consumes a session token ahead of its natural expiry.
func (s *LicenseService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.ErrSessionTokenMissing
	}
	if err := s.registry.Consume(ctx, token); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session logged out",
		slog.String("token_prefix", session.TokenPrefix(token)),
	)
	return nil
}

// BindingStatus reports the masked binding state of a license key.
func (s *LicenseService) BindingStatus(ctx context.Context, key string) (domain.BindingStatus, error) {
	return s.bindings.Status(ctx, key)
}

// ActiveSessions returns the current live session count.
func (s *LicenseService) ActiveSessions() int {
	return s.registry.Count()
}
