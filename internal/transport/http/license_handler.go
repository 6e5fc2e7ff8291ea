package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/internal/infrastructure"
	"github.com/MasterDev782/Hosting/internal/license"
	mw "github.com/MasterDev782/Hosting/internal/middleware"
	"github.com/MasterDev782/Hosting/internal/services"
	v1 "github.com/MasterDev782/Hosting/pkg/contracts/api/v1"
)

// LicenseHandler exposes license validation and the operator-facing
// binding status endpoint.
type LicenseHandler struct {
	service  *services.LicenseService
	validate *mw.ValidationMiddleware
	logger   *slog.Logger
}

// NewLicenseHandler creates a license handler.
func NewLicenseHandler(service *services.LicenseService, validate *mw.ValidationMiddleware, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		validate: validate,
		logger:   logger.With(slog.String("handler", "license")),
	}
}

// Validate handles POST /validate, the second phase of validation: the
// pin opened by /session/request is redeemed and, when the license
// checks out, a session token is minted.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := mw.GetRequestID(ctx)
	traceID := infrastructure.GetTraceID(ctx)
	tracer := otel.Tracer("license-handler")
	start := time.Now()

	ctx, span := tracer.Start(ctx, "license_handler.validate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/validate"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	var req v1.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.ValidateStruct(&req); err != nil {
		span.RecordError(err)
		render.Render(w, r, apperrors.MapError(err, r.URL.Path, traceID))
		return
	}

	address := mw.ClientAddress(r)
	resp, err := h.service.Validate(ctx, req, address)
	latency := time.Since(start)

	span.SetAttributes(
		attribute.Int64("request.latency_ms", latency.Milliseconds()),
		attribute.Bool("request.success", err == nil),
	)

	if err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "validation request failed",
			slog.String("request_id", reqID),
			slog.String("license_key", license.MaskLicenseKey(req.LicenseKey)),
			slog.String("address", address),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.MapError(err, r.URL.Path, traceID))
		return
	}

	h.logger.InfoContext(ctx, "validation request completed",
		slog.String("request_id", reqID),
		slog.String("license_key", license.MaskLicenseKey(req.LicenseKey)),
		slog.String("address", address),
		slog.Duration("latency", latency),
	)
	render.JSON(w, r, resp)
}

// Routes returns a chi router for the /api/license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	return r
}

// Status handles GET /api/license/status?license_key=... and reports
// the masked binding record.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	key := r.URL.Query().Get("license_key")
	if key == "" {
		render.Render(w, r, apperrors.ErrValidation("license_key", "license_key query parameter is required"))
		return
	}

	status, err := h.service.BindingStatus(ctx, key)
	if err != nil {
		render.Render(w, r, apperrors.MapError(err, r.URL.Path, traceID))
		return
	}
	render.JSON(w, r, status)
}
