// Package domain contains the core domain models for the relay service.
// These types serve as the single source of truth for all layers.
package domain

import (
	"time"
)

// LicenseStatus represents the lifecycle status of a license
type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusRevoked   LicenseStatus = "revoked"
)

// License is one provisioned license record. HardwareID and Address are
// empty until first-use binding; once set they change only through an
// administrative reset of the store file.
type License struct {
	Key        string        `json:"key" validate:"required,min=10"`
	HardwareID string        `json:"hardware_id,omitempty"`
	Address    string        `json:"address,omitempty"`
	Status     LicenseStatus `json:"status" validate:"required,oneof=active suspended revoked"`
	BoundAt    *time.Time    `json:"bound_at,omitempty"`
}

// Bound reports whether the license has completed first-use binding.
func (l License) Bound() bool {
	return l.HardwareID != ""
}

// BindingStatus is the operator-visible view of a license record.
// Key and hardware id are masked before it leaves the service layer.
type BindingStatus struct {
	LicenseKey string        `json:"license_key"`
	Status     LicenseStatus `json:"status"`
	Bound      bool          `json:"bound"`
	HardwareID string        `json:"hardware_id,omitempty"`
	BoundAt    *time.Time    `json:"bound_at,omitempty"`
}
