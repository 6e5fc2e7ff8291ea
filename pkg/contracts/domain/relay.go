package domain

import (
	"time"
)

// RelayOperation names one downstream stress-service call.
type RelayOperation string

const (
	RelayStart   RelayOperation = "start"
	RelayStop    RelayOperation = "stop"
	RelayStopAll RelayOperation = "stopall"
	RelayStatus  RelayOperation = "status"
)

// KnownRelayOperation reports whether op names one of the four
// downstream operations.
func KnownRelayOperation(op string) bool {
	switch RelayOperation(op) {
	case RelayStart, RelayStop, RelayStopAll, RelayStatus:
		return true
	}
	return false
}

// RelayJob is the server-side record of a stress job the gateway has
// started and not yet seen stopped.
type RelayJob struct {
	ID         string    `json:"id"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Method     string    `json:"method"`
	Duration   int       `json:"duration"`
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LicenseKey string    `json:"-"`
}
