// Package api contains API contract definitions for the relay service.
// Version v1 represents the current stable API version.
package api

import (
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// Session API requests

// SessionRequest opens the two-phase validation window: the caller's
// address is pinned to the presented hardware id for a short time.
type SessionRequest struct {
	HardwareID string `json:"hardware_id" validate:"required,hwid"`
}

// SessionResponse acknowledges an address pin.
type SessionResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

// LogoutRequest invalidates a session token before its natural expiry.
type LogoutRequest struct {
	SessionToken string `json:"session_token" validate:"required"`
}

// LogoutResponse acknowledges an explicit logout.
type LogoutResponse struct {
	Status string `json:"status"`
}

// License API requests

// ValidateRequest exchanges a license key and hardware id for a session
// token. The caller must hold a live address pin for the hardware id.
type ValidateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=10,max=256"`
	HardwareID string `json:"hardware_id" validate:"required,hwid"`
}

// ValidateResponse carries a freshly issued session token.
type ValidateResponse struct {
	Status       string `json:"status"`
	SessionToken string `json:"session_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Relay API requests

// RelayEnvelope is the part of every relay request body the gating
// layer reads before the operation parameters are looked at.
type RelayEnvelope struct {
	SessionToken string `json:"session_token" validate:"required"`
}

// RelayStartParams are the client-supplied parameters of the start
// operation. The downstream service key is injected server-side and
// deliberately has no field here.
type RelayStartParams struct {
	Host     string `json:"host" validate:"required,max=256"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Duration int    `json:"duration" validate:"required,min=1,max=86400"`
	Method   string `json:"method" validate:"required,printascii,max=64"`
}

// RelayStopParams identify the job to stop.
type RelayStopParams struct {
	JobID string `json:"job_id" validate:"required,max=128"`
}

// JobsResponse lists the jobs the relay has started and not yet seen
// stopped or expire.
type JobsResponse struct {
	Jobs  []domain.RelayJob `json:"jobs"`
	Count int               `json:"count"`
}
