package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// Problem type URIs following RFC 7807
const (
	TypeValidation           = "/errors/validation"
	TypeNotFound             = "/errors/not-found"
	TypeInternal             = "/errors/internal"
	TypeTimeout              = "/errors/timeout"
	TypeRateLimit            = "/errors/rate-limited"
	TypeLicenseNotFound      = "/errors/license-not-found"
	TypeLicenseInactive      = "/errors/license-inactive"
	TypeHardwareMismatch     = "/errors/hardware-mismatch"
	TypeAddressMismatch      = "/errors/address-mismatch"
	TypeAuthorityRejected    = "/errors/authority-rejected"
	TypeAuthorityUnreachable = "/errors/authority-unreachable"
	TypeSessionMissing       = "/errors/session-token-missing"
	TypeSessionNotFound      = "/errors/session-not-found"
	TypeSessionExpired       = "/errors/session-expired"
	TypeSessionMismatch      = "/errors/session-address-mismatch"
	TypeNoActiveSession      = "/errors/no-active-session"
	TypePinMismatch          = "/errors/pin-address-mismatch"
	TypeRelayUnavailable     = "/errors/relay-unavailable"
	TypeRelayTimeout         = "/errors/relay-timeout"
	TypeUnknownOperation     = "/errors/unknown-operation"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}
