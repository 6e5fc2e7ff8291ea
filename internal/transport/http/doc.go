// Package http implements the HTTP handlers of the relay service.
// It is a thin layer between transport and business logic: handlers
// parse and validate requests, delegate to the service layer, and
// format responses.
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Privileged endpoints sit behind middleware.SessionGuard, which
// resolves the presented session token before the handler runs.
//
// # Error Handling
//
// All errors follow RFC 7807 problem details:
//
//	{
//	    "type": "/errors/session-expired",
//	    "title": "Session Expired",
//	    "status": 401,
//	    "detail": "The session token has expired; validate again",
//	    "instance": "/relay/start"
//	}
//
// Handlers never improvise error bodies; everything routes through
// errors.MapError so every failure reaches the client with a specific,
// recoverable reason.
package http
