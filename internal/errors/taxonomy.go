package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Sentinel errors for the binding and session state machine.
var (
	// License lookup and binding
	ErrLicenseNotFound  = errors.New("license not found")
	ErrLicenseInactive  = errors.New("license inactive")
	ErrHardwareMismatch = errors.New("hardware mismatch")
	ErrAddressMismatch  = errors.New("address mismatch")

	// External licensing authority
	ErrAuthorityUnreachable = errors.New("license authority unreachable")

	// Session tokens
	ErrSessionTokenMissing    = errors.New("session token missing")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionExpired         = errors.New("session expired")
	ErrSessionAddressMismatch = errors.New("session address mismatch")

	// Address pins minted by the session-request pre-step
	ErrNoActiveSession    = errors.New("no active session")
	ErrPinAddressMismatch = errors.New("pinned address mismatch")

	// Validation attempt limiting
	ErrTooManyAttempts = errors.New("too many validation attempts")
)

// AuthorityError carries the licensing authority's reject verdict.
// Message reaches the client verbatim.
type AuthorityError struct {
	Code    int
	Message string
}

// Error implements the error interface
func (e *AuthorityError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authority rejected key (result %d)", e.Code)
	}
	return e.Message
}

// RelayError is the uniform failure for downstream relay calls. Status
// holds the downstream HTTP status when one was received, zero otherwise.
type RelayError struct {
	Operation string
	Status    int
	Err       error
}

// Error implements the error interface
func (e *RelayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay %s: downstream status %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("relay %s: %v", e.Operation, e.Err)
}

// Unwrap exposes the transport cause for errors.Is checks
func (e *RelayError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the downstream call hit its deadline.
func (e *RelayError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// MapError maps domain errors to RFC 7807 problem details. Every failure
// reaches the client with a specific, recoverable reason; nothing maps to
// a generic denial.
func MapError(err error, instance, traceID string) render.Renderer {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var authErr *AuthorityError
	if errors.As(err, &authErr) {
		return NewProblemDetails(
			http.StatusForbidden,
			TypeAuthorityRejected,
			"License Rejected",
			authErr.Message,
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "AUTHORITY_REJECTED").
			WithExtension("result_code", authErr.Code)
	}

	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		if relayErr.Timeout() {
			return NewProblemDetails(
				http.StatusGatewayTimeout,
				TypeRelayTimeout,
				"Relay Timeout",
				"The downstream service did not answer in time. The operation was not retried.",
				instance,
			).WithExtension("trace_id", traceID).
				WithExtension("error_code", "RELAY_TIMEOUT").
				WithExtension("operation", relayErr.Operation)
		}
		pd := NewProblemDetails(
			http.StatusBadGateway,
			TypeRelayUnavailable,
			"Relay Unavailable",
			"The downstream service could not be reached. The operation was not retried.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RELAY_UNAVAILABLE").
			WithExtension("operation", relayErr.Operation)
		if relayErr.Status != 0 {
			pd.WithExtension("downstream_status", relayErr.Status)
		}
		return pd
	}

	instanceExt := func(pd *ProblemDetails, code string) *ProblemDetails {
		return pd.WithExtension("trace_id", traceID).WithExtension("error_code", code)
	}

	switch {
	case errors.Is(err, ErrLicenseNotFound):
		return instanceExt(NewProblemDetails(
			http.StatusNotFound,
			TypeLicenseNotFound,
			"License Not Found",
			"The presented license key is not provisioned on this server.",
			instance,
		), "LICENSE_NOT_FOUND")

	case errors.Is(err, ErrLicenseInactive):
		return instanceExt(NewProblemDetails(
			http.StatusForbidden,
			TypeLicenseInactive,
			"License Inactive",
			err.Error(),
			instance,
		), "LICENSE_INACTIVE")

	case errors.Is(err, ErrHardwareMismatch):
		return instanceExt(NewProblemDetails(
			http.StatusConflict,
			TypeHardwareMismatch,
			"Hardware Mismatch",
			"This license is bound to a different hardware id. Contact support to reset the binding.",
			instance,
		), "BINDING_CONFLICT").WithExtension("conflict", "hardware")

	case errors.Is(err, ErrAddressMismatch):
		return instanceExt(NewProblemDetails(
			http.StatusConflict,
			TypeAddressMismatch,
			"Address Mismatch",
			"This license is bound to a different network address. Contact support to reset the binding.",
			instance,
		), "BINDING_CONFLICT").WithExtension("conflict", "address")

	case errors.Is(err, ErrAuthorityUnreachable):
		return instanceExt(NewProblemDetails(
			http.StatusBadGateway,
			TypeAuthorityUnreachable,
			"License Authority Unreachable",
			"Unable to confirm the license with the licensing authority. Please try again later.",
			instance,
		), "AUTHORITY_UNREACHABLE")

	case errors.Is(err, ErrSessionTokenMissing):
		return instanceExt(NewProblemDetails(
			http.StatusUnauthorized,
			TypeSessionMissing,
			"Session Token Missing",
			"No session token was presented. Validate your license to obtain one.",
			instance,
		), "SESSION_TOKEN_MISSING")

	case errors.Is(err, ErrSessionNotFound):
		return instanceExt(NewProblemDetails(
			http.StatusUnauthorized,
			TypeSessionNotFound,
			"Session Not Found",
			"The presented session token is not known. Validate your license again.",
			instance,
		), "SESSION_NOT_FOUND")

	case errors.Is(err, ErrSessionExpired):
		return instanceExt(NewProblemDetails(
			http.StatusUnauthorized,
			TypeSessionExpired,
			"Session Expired",
			"The session has expired. Validate your license to obtain a new token.",
			instance,
		), "SESSION_EXPIRED")

	case errors.Is(err, ErrSessionAddressMismatch):
		return instanceExt(NewProblemDetails(
			http.StatusUnauthorized,
			TypeSessionMismatch,
			"Session Address Mismatch",
			"The session was issued to a different network address and has been invalidated. Validate your license again.",
			instance,
		), "SESSION_ADDRESS_MISMATCH")

	case errors.Is(err, ErrNoActiveSession):
		return instanceExt(NewProblemDetails(
			http.StatusForbidden,
			TypeNoActiveSession,
			"No Active Session",
			"No active session. Please restart the application.",
			instance,
		), "NO_ACTIVE_SESSION")

	case errors.Is(err, ErrPinAddressMismatch):
		return instanceExt(NewProblemDetails(
			http.StatusForbidden,
			TypePinMismatch,
			"Pinned Address Mismatch",
			"IP address mismatch. Please restart the application.",
			instance,
		), "PIN_ADDRESS_MISMATCH")

	case errors.Is(err, ErrTooManyAttempts):
		return instanceExt(NewProblemDetails(
			http.StatusTooManyRequests,
			TypeRateLimit,
			"Too Many Requests",
			"Too many validation attempts. Please try again later.",
			instance,
		), "TOO_MANY_ATTEMPTS").WithExtension("retry_after", 900)

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return instanceExt(NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled.",
			instance,
		), "TIMEOUT")

	default:
		return instanceExt(NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		), "INTERNAL_ERROR")
	}
}
