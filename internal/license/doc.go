// Package license implements license validation and hardware binding for
// the hosting relay service.
//
// A license key entitles one machine at one network address to use the
// relay. The package keeps a local store of bindings, consults the
// external license authority on every validation, and rate limits
// repeated failures per caller.
//
// # Components
//
//   - Store: durable record of which (hardware, address) pair each key
//     is bound to. The first successful validation binds the key; later
//     validations must present the same pair.
//   - Authority: the external service with the final say on whether a
//     key is genuine. It is consulted on every validation, a locally
//     bound key that has been revoked upstream stops working on the
//     next call.
//   - Binder: ties the two together and enforces the binding rules.
//   - AttemptLimiter: sliding window limiter that blocks callers who
//     keep failing validation.
//
// # Validation flow
//
//	binder := license.NewBinder(store, authority, logger)
//	lic, err := binder.Validate(ctx, key, hardwareID, address)
//
// Validate returns the bound license on success. On failure the error
// is one of the sentinel values in internal/errors (hardware mismatch,
// address mismatch, authority rejection, authority unreachable) so
// transports can map it to a precise response.
package license
