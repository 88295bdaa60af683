// ABOUTME: Package documentation for the HTTP gateway
// ABOUTME: Describes the REST and SSE surface and the component lifecycle

// Package gateway serves the cool-squad HTTP API.
//
// # Overview
//
// New builds the whole stack from a config.Config: the SQLite store, the
// conversation store restored from it, the bot roster, the tool registry,
// reasoning providers, the budget tracker, the bot engine, the router and,
// when enabled, the autonomous thinker. NewWithDeps wraps components that
// were built elsewhere, which is what the tests use.
//
// # HTTP API
//
// Reads go to the conversation store directly. Writes that carry a human
// message go through the router so that @mentions trigger bots after the
// message has been stored and broadcast.
//
//	GET    /api/channels
//	GET    /api/channels/{name}                 ?format=html renders markdown
//	POST   /api/channels/{name}/messages
//	GET    /api/channels/{name}/bots
//	POST   /api/channels/{name}/bots
//	DELETE /api/channels/{name}/bots/{bot}
//	GET    /api/boards
//	POST   /api/boards
//	GET    /api/boards/{board}
//	POST   /api/boards/{board}/threads
//	GET    /api/boards/{board}/threads/{thread} ?format=html renders markdown
//	POST   /api/boards/{board}/threads/{thread}/messages
//	POST   /api/boards/{board}/threads/{thread}/pin
//	POST   /api/boards/{board}/threads/{thread}/tags
//	GET    /api/bots
//	GET    /api/bots/{bot}
//	GET    /api/bots/{bot}/monologue            ?limit=N&category=C
//	PATCH  /api/bots/{bot}/monologue
//	POST   /api/bots/{bot}/monologue/thoughts
//	DELETE /api/bots/{bot}/monologue/thoughts
//	DELETE /api/bots/{bot}/monologue/tools
//	GET    /api/budget
//	PUT    /api/budget/{provider}[/{model}]
//	DELETE /api/budget/{provider}[/{model}]
//
// Errors are JSON objects of the form {"error": "..."}. Invalid arguments
// map to 400, unknown resources to 404, changes to the everyone channel's
// membership to 409 and per-author rate limiting to 429.
//
// # Streams
//
//	GET /sse/channels/{name}?client_id=ID
//	GET /sse/boards/{board}?client_id=ID
//
// Each stream starts with a history event, then carries live message,
// thread_update and board_update events plus a periodic ping. When a
// subscriber falls behind, its oldest events are dropped and a resync event
// is sent; the stream ends after it and the client reconnects for a fresh
// history.
//
// # Listeners
//
// The API listens on server.http_addr, or on a Tailscale node when
// tailscale.enabled is set: plain HTTP on :80, tailnet HTTPS on :443 or a
// public Funnel.
package gateway
