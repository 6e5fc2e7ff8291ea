package http

import (
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/MasterDev782/Hosting/internal/relay"
	"github.com/MasterDev782/Hosting/internal/services"
	v1 "github.com/MasterDev782/Hosting/pkg/contracts/api/v1"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// RelayHandler exposes the gated relay operations and the job listing.
// Every route sits behind the session guard; handlers receive the
// resolved session.
type RelayHandler struct {
	service  *services.RelayService
	guard    *mw.SessionGuard
	validate *mw.ValidationMiddleware
	logger   *slog.Logger
}

// NewRelayHandler creates a relay handler.
func NewRelayHandler(service *services.RelayService, guard *mw.SessionGuard, validate *mw.ValidationMiddleware, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service:  service,
		guard:    guard,
		validate: validate,
		logger:   logger.With(slog.String("handler", "relay")),
	}
}

// Routes returns a chi router for the /relay endpoints.
func (h *RelayHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{operation}", h.guard.Wrap(h.Forward))
	return r
}

// JobsRoute returns the session-gated GET /api/jobs handler.
func (h *RelayHandler) JobsRoute() http.HandlerFunc {
	return h.guard.Wrap(h.Jobs)
}

// Forward handles POST /relay/{operation}. The downstream answer is
// relayed byte for byte, status code and content type included; the
// handler never reshapes it.
func (h *RelayHandler) Forward(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)
	op := chi.URLParam(r, "operation")
	tracer := otel.Tracer("relay-handler")
	start := time.Now()

	if !domain.KnownRelayOperation(op) {
		render.Render(w, r, apperrors.NewProblemDetails(
			http.StatusNotFound,
			apperrors.TypeUnknownOperation,
			"Unknown Operation",
			fmt.Sprintf("%q is not a relay operation", op),
			r.URL.Path,
		).WithExtension("trace_id", traceID))
		return
	}

	ctx, span := tracer.Start(ctx, "relay_handler.forward",
		trace.WithAttributes(
			attribute.String("http.route", "/relay/{operation}"),
			attribute.String("relay.operation", op),
		),
	)
	defer span.End()

	resp, err := h.dispatch(ctx, op, r, sess)
	latency := time.Since(start)

	span.SetAttributes(
		attribute.Int64("request.latency_ms", latency.Milliseconds()),
		attribute.Bool("request.success", err == nil),
	)

	if err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "relay operation failed",
			slog.String("operation", op),
			slog.String("license_key", license.MaskLicenseKey(sess.LicenseKey)),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.MapError(err, r.URL.Path, traceID))
		return
	}

	h.logger.InfoContext(ctx, "relay operation completed",
		slog.String("operation", op),
		slog.String("license_key", license.MaskLicenseKey(sess.LicenseKey)),
		slog.Int("downstream_status", resp.StatusCode),
		slog.Duration("latency", latency),
	)
	writeDownstream(w, resp)
}

// dispatch decodes the operation parameters and runs the matching
// service call. The session token never reaches the parameter structs,
// so it is stripped from what goes downstream by construction.
func (h *RelayHandler) dispatch(ctx context.Context, op string, r *http.Request, sess domain.Session) (*relay.Response, error) {
	switch domain.RelayOperation(op) {
	case domain.RelayStart:
		var params v1.RelayStartParams
		if err := decodeParams(r, &params); err != nil {
			return nil, err
		}
		if err := h.validate.ValidateStruct(&params); err != nil {
			return nil, err
		}
		return h.service.Start(ctx, sess, params)

	case domain.RelayStop:
		var params v1.RelayStopParams
		if err := decodeParams(r, &params); err != nil {
			return nil, err
		}
		if err := h.validate.ValidateStruct(&params); err != nil {
			return nil, err
		}
		return h.service.Stop(ctx, sess, params)

	case domain.RelayStopAll:
		return h.service.StopAll(ctx, sess)

	default:
		return h.service.Status(ctx, sess)
	}
}

// Jobs handles GET /api/jobs behind the session guard.
func (h *RelayHandler) Jobs(w http.ResponseWriter, r *http.Request, _ domain.Session) {
	render.JSON(w, r, h.service.Jobs(r.Context()))
}

// decodeParams reads the operation parameters from the request body.
// An empty body is fine; the validator catches missing fields.
func decodeParams(r *http.Request, into any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apperrors.InvalidRequestWithError(err)
	}
	return nil
}

// writeDownstream relays a downstream answer verbatim.
func writeDownstream(w http.ResponseWriter, resp *relay.Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
