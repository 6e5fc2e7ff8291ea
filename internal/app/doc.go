// Package app assembles and runs the relay service. It owns the
// dependency graph: configuration, logging, OpenTelemetry, the license
// store and binder, the session registry, the relay gateway and job
// tracker, the websocket hub, and the HTTP router that ties everything
// to the wire.
//
// The assembly order is fixed: infrastructure first, then domain
// components, then services, then transport. Nothing reaches into a
// sibling; everything arrives through constructors.
package app
