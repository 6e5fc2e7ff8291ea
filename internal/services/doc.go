// Package services implements the business logic layer of the hosting
// relay. It sits between the HTTP handlers and the domain packages,
// keeping the validation, session, and relay rules in one testable
// place.
//
// Services follow these principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. Error handling via the sentinel taxonomy in internal/errors
//
// # Available Services
//
//	- LicenseService: the two-phase validation flow (address pinning,
//	  license binding, session issuance) plus logout and binding status
//	- RelayService: gated forwarding to the downstream stress service
//	  with job bookkeeping and event broadcasting
//	- HealthService: liveness, readiness, and version reporting
package services
