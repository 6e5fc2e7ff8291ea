package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/internal/infrastructure"
	"github.com/MasterDev782/Hosting/internal/session"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// GuardedHandler is a handler that runs only behind a valid session.
// The resolved session arrives as an explicit parameter, never through
// the context.
type GuardedHandler func(w http.ResponseWriter, r *http.Request, sess domain.Session)

// SessionGuard gates privileged endpoints on a live session token. It
// resolves the presented token against the registry and rejects with
// the specific reason on anything but a valid session.
type SessionGuard struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewSessionGuard constructs a guard over the given registry.
func NewSessionGuard(registry *session.Registry, logger *slog.Logger) *SessionGuard {
	return &SessionGuard{
		registry: registry,
		logger:   logger.With(slog.String("component", "session_guard")),
	}
}

// Wrap turns a GuardedHandler into a plain http.HandlerFunc.
func (g *SessionGuard) Wrap(next GuardedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		traceID := infrastructure.GetTraceID(ctx)

		token, err := ExtractToken(r)
		if err != nil {
			render.Render(w, r, apperrors.MapError(err, r.URL.Path, traceID))
			return
		}

		address := ClientAddress(r)
		sess, outcome := g.registry.Resolve(ctx, token, address)

		if metrics := GetBusinessMetricsFromContext(ctx); metrics != nil {
			infrastructure.RecordSessionResolution(ctx, metrics, string(outcome))
		}

		if outcome != domain.ResolveValid {
			g.logger.WarnContext(ctx, "session rejected",
				slog.String("outcome", string(outcome)),
				slog.String("token_prefix", session.TokenPrefix(token)),
				slog.String("address", address),
				slog.String("path", r.URL.Path),
			)
			render.Render(w, r, apperrors.MapError(OutcomeError(outcome), r.URL.Path, traceID))
			return
		}

		next(w, r, sess)
	}
}

// OutcomeError maps a non-valid resolve outcome to its sentinel. The
// websocket upgrade path shares it so rejections carry the same
// specific reason the guard reports.
func OutcomeError(outcome domain.ResolveOutcome) error {
	switch outcome {
	case domain.ResolveExpired:
		return apperrors.ErrSessionExpired
	case domain.ResolveAddressMismatch:
		return apperrors.ErrSessionAddressMismatch
	default:
		return apperrors.ErrSessionNotFound
	}
}

// ExtractToken finds the session token in, by precedence: the JSON
// body's session_token field, the Authorization bearer header, or the
// token query parameter. The body is restored for the handler.
func ExtractToken(r *http.Request) (string, error) {
	if r.Body != nil && r.ContentLength != 0 {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return "", apperrors.ErrSessionTokenMissing
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var envelope struct {
			SessionToken string `json:"session_token"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.SessionToken != "" {
			return envelope.SessionToken, nil
		}
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
			return token, nil
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", apperrors.ErrSessionTokenMissing
}

// ClientAddress returns the caller's address without the port. RealIP
// runs earlier in the chain, so RemoteAddr already reflects forwarding
// headers.
func ClientAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
