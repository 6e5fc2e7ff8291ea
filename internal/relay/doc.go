// Package relay forwards gated operations to the downstream stress
// service and keeps track of the jobs it has started.
//
// The Gateway owns the downstream credential: clients never see or
// supply it, the gateway injects it into every outbound call. Each
// forward is bounded by its own timeout and is never retried, the
// downstream start and stop operations are not idempotent.
//
// The Tracker is the in-memory ledger of running jobs. It exists for
// operator visibility (the jobs listing and the websocket event
// stream), the downstream service remains the source of truth.
package relay
