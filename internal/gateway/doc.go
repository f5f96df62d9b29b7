// Package gateway runs the bing-cell HTTP server.
//
// # Overview
//
// The gateway owns the store, the Bing relay clients and the room service,
// and exposes them over HTTP. It listens on a plain TCP address or, when
// tailscale is enabled, on a tsnet node.
//
// # HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check
//   - POST /api/rooms - Create a room
//   - GET /api/rooms - List the caller's rooms
//   - GET /api/rooms/{id} - Room detail
//   - POST /api/rooms/{id}/session - Negotiate a conversation now
//   - DELETE /api/rooms/{id}/session - Drop the room's conversation
//   - GET /api/rooms/{id}/messages - History (?format=html renders replies)
//   - POST /api/rooms/{id}/messages - Send a message (SSE response)
//
// Everything under /api requires a caller identity; see auth.Middleware.
//
// # Streaming
//
// A send answers with text/event-stream once the first reply fragment is
// ready:
//
//	event: started
//	data: {"room_id":"..."}
//
//	event: text
//	data: {"text":"Hel"}
//
//	event: done
//	data: {"message_id":"...","reply_id":"...","full_response":"Hello","num_user_messages":1}
//
// Failures before the stream starts are plain JSON errors with a status
// code (502 for negotiation failures); failures after it started arrive as
// an "error" event.
//
// A send may carry an Idempotency-Key header (or "idempotency_key" in the
// body). Repeating a key the same user already used on the room answers 409
// until the key expires, unless Bing never accepted the first attempt.
package gateway
