// Package server implements the core HTTP and WebSocket functionality of the
// chat relay.
//
// The implementation is organized into specialized files for configuration,
// the connection registry, presence management, broadcast routing, hub and
// client lifecycles, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
