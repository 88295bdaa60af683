// ABOUTME: Package documentation for the cool-squad HTTP client
// ABOUTME: Covers REST calls and the reconnecting SSE tail

// Package client is the HTTP client behind squad-cli.
//
// Client wraps the REST endpoints of a cool-squad server. Non-2xx responses
// are returned as *APIError carrying the status and the server's message.
//
// Tail follows a channel over SSE. Each connection starts with a history
// snapshot, so after a resync or a dropped connection Tail simply reconnects
// and skips the message ids it has already delivered. Reconnects back off
// exponentially between TailOptions.MinBackoff and MaxBackoff; a 4xx from the
// server ends the tail.
package client
