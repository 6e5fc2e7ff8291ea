package http

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/internal/license"
	mw "github.com/MasterDev782/Hosting/internal/middleware"
	"github.com/MasterDev782/Hosting/internal/relay"
	"github.com/MasterDev782/Hosting/internal/services"
	"github.com/MasterDev782/Hosting/internal/session"
	"github.com/MasterDev782/Hosting/internal/shared/testutil"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return logger
}

// stubValidator accepts every (key, hardware) pair unless failWith is
// set.
type stubValidator struct {
	failWith error
}

func (s *stubValidator) Validate(_ context.Context, key, hardwareID, address string) (domain.License, error) {
	if s.failWith != nil {
		return domain.License{}, s.failWith
	}
	return domain.License{Key: key, HardwareID: hardwareID, Address: address, Status: domain.LicenseStatusActive}, nil
}

type stubBindings struct {
	status domain.BindingStatus
	err    error
}

func (s *stubBindings) Status(context.Context, string) (domain.BindingStatus, error) {
	return s.status, s.err
}

type stubForwarder struct {
	forwardFn func(ctx context.Context, op domain.RelayOperation, params any) (*relay.Response, error)
}

func (s *stubForwarder) Forward(ctx context.Context, op domain.RelayOperation, params any) (*relay.Response, error) {
	if s.forwardFn == nil {
		return &relay.Response{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"status":"ok"}`)}, nil
	}
	return s.forwardFn(ctx, op, params)
}

// handlerFixture wires real services over stubbed edges, mirroring the
// production assembly minus the network.
type handlerFixture struct {
	router    chi.Router
	registry  *session.Registry
	validator *stubValidator
	bindings  *stubBindings
	forwarder *stubForwarder
	licenses  *services.LicenseService
	relays    *services.RelayService
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := testLogger(t)

	registry := session.NewRegistry(session.RegistryOptions{Lifetime: 2 * time.Hour}, logger)
	t.Cleanup(registry.Stop)
	pins := session.NewPins(5*time.Minute, time.Minute, logger)
	t.Cleanup(pins.Stop)
	limiter := license.NewAttemptLimiter(5, 15*time.Minute, 15*time.Minute, logger)
	t.Cleanup(limiter.Stop)
	tracker := relay.NewTracker(time.Minute, logger)
	t.Cleanup(tracker.Stop)

	validator := &stubValidator{}
	bindings := &stubBindings{}
	forwarder := &stubForwarder{}

	licenses := services.NewLicenseService(validator, bindings, registry, pins, limiter, nil, logger)
	relays := services.NewRelayService(forwarder, tracker, nil, nil, logger)
	health := services.NewHealthService("", licenses, relays, nil, logger)

	validate := mw.NewValidationMiddleware(logger, apperrors.NewErrorHandler(logger))
	guard := mw.NewSessionGuard(registry, logger)

	sessionHandler := NewSessionHandler(licenses, validate, logger)
	licenseHandler := NewLicenseHandler(licenses, validate, logger)
	relayHandler := NewRelayHandler(relays, guard, validate, logger)
	healthHandler := NewHealthHandler(health, logger)

	r := chi.NewRouter()
	r.Mount("/session", sessionHandler.Routes())
	r.Post("/validate", licenseHandler.Validate)
	r.Mount("/relay", relayHandler.Routes())
	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", licenseHandler.Routes())
		r.Get("/jobs", relayHandler.JobsRoute())
		r.Mount("/", healthHandler.Routes())
	})

	return &handlerFixture{
		router:    r,
		registry:  registry,
		validator: validator,
		bindings:  bindings,
		forwarder: forwarder,
		licenses:  licenses,
		relays:    relays,
	}
}

// issueSession mints a live session directly against the registry for
// tests that start past the validation flow.
func (f *handlerFixture) issueSession(t *testing.T, key, address string) domain.Session {
	t.Helper()
	sess, err := f.registry.Issue(context.Background(), key, address)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return sess
}
