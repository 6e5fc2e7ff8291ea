package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/internal/infrastructure"
	mw "github.com/MasterDev782/Hosting/internal/middleware"
	"github.com/MasterDev782/Hosting/internal/services"
	v1 "github.com/MasterDev782/Hosting/pkg/contracts/api/v1"
)

// SessionHandler exposes the session lifecycle endpoints: the address
// pin that opens the validation window, and explicit logout.
type SessionHandler struct {
	service  *services.LicenseService
	validate *mw.ValidationMiddleware
	logger   *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(service *services.LicenseService, validate *mw.ValidationMiddleware, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service:  service,
		validate: validate,
		logger:   logger.With(slog.String("handler", "session")),
	}
}

// Routes returns a chi router for the session endpoints.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/request", h.Request)
	r.Post("/logout", h.Logout)
	return r
}

// Request handles POST /session/request. It pins the caller's address
// to the presented hardware id so the following /validate can be
// checked against it.
func (h *SessionHandler) Request(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req v1.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.ValidateStruct(&req); err != nil {
		render.Render(w, r, apperrors.MapError(err, r.URL.Path, infrastructure.GetTraceID(ctx)))
		return
	}

	resp := h.service.RequestSession(ctx, req.HardwareID, mw.ClientAddress(r))
	render.JSON(w, r, resp)
}

// Logout handles POST /session/logout. The token comes from the JSON
// body, the bearer header, or the token query parameter.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	token, err := mw.ExtractToken(r)
	if err != nil {
		render.Render(w, r, apperrors.MapError(err, r.URL.Path, traceID))
		return
	}

	if err := h.service.Logout(ctx, token); err != nil {
		render.Render(w, r, apperrors.MapError(err, r.URL.Path, traceID))
		return
	}

	render.JSON(w, r, &v1.LogoutResponse{Status: "success"})
}
