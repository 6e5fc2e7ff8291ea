// Package session owns the volatile credential state of the relay
// service: the session tokens that gate the privileged relay
// operations, and the short-lived address pins minted by the
// two-phase validation pre-step.
//
// # Registry
//
// The Registry issues opaque random tokens bound to a (license key,
// network address) pair and answers Resolve with one of four outcomes:
// Valid, Expired, AddressMismatch, or NotFound. Expiry is permanent: an
// expired token leaves a tombstone behind so repeated resolves keep
// answering Expired instead of degrading to NotFound. A resolve from
// the wrong address destroys the token outright; a later resolve from
// the original address answers NotFound. All per-token transitions are
// serialized under one registry lock, so at most one caller ever wins a
// race between using a token and invalidating it. The lock is never
// held across I/O.
//
// Sessions do not survive a restart. Every holder re-validates.
//
// # Pins
//
// Pins is the one-shot (hardware id -> address) map behind the
// /session/request pre-step. Redeeming a pin consumes it whatever the
// rest of the validation run produces; a missing or mismatched pin maps
// to the no-active-session and pin-mismatch sentinels in
// internal/errors.
package session
