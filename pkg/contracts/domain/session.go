package domain

import (
	"time"
)

// Session is a short-lived credential granting access to the relay
// operations. Sessions are owned by the session registry; only value
// copies escape it.
type Session struct {
	Token      string    `json:"-"`
	LicenseKey string    `json:"license_key"`
	Address    string    `json:"address"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ResolveOutcome classifies a session registry lookup.
type ResolveOutcome string

const (
	ResolveValid           ResolveOutcome = "valid"
	ResolveExpired         ResolveOutcome = "expired"
	ResolveAddressMismatch ResolveOutcome = "address_mismatch"
	ResolveNotFound        ResolveOutcome = "not_found"
)
