// Package server implements the core of the signalroom relay: a room-scoped
// presence registry, the per-connection session protocol, and the broadcast
// machinery that fans chat and roster events out over WebSocket connections.
//
// The implementation is organized into specialized files for the registry,
// protocol, router, coordinator, hub, clients, configuration, routing, and
// HTTP handlers to keep the codebase maintainable and testable as the
// project grows.
package server
