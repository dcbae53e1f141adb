// Package server implements the HTTP API and the WebSocket channel of the
// chat relay.
//
// The implementation is organized into specialized files for the hub,
// clients, origin policy, rate limiting, routing, and HTTP handlers. The
// send path, registry and presence logic live in their own packages; this
// package only adapts them to the wire.
package server
