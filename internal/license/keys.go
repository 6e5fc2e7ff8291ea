package license

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaskLicenseKey returns a redacted form of a license key safe for logs
// and status responses. Short keys are fully masked.
func MaskLicenseKey(key string) string {
	if len(key) < 12 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// HashLicenseKey returns a short stable digest of a license key for
// audit correlation without exposing the key itself.
func HashLicenseKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
