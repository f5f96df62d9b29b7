// Package room is the caller of the Bing relay: it owns conversation state
// and decides policy around it.
//
// # Sessions
//
// A room is bound to at most one remote conversation. EnsureSession returns
// the persisted one or negotiates a new one. Concurrent negotiations for the
// same room collapse into one request; a rejected negotiation is retried up
// to a configured number of attempts, and every outbound negotiation waits
// on a shared rate limiter.
//
// # Sending
//
// SendMessage serializes sends per room. The user message is recorded before
// anything goes out. Each reply fragment is relayed to the caller's
// ChunkWriter as it arrives. Once the service has produced any answer the
// message count is incremented, even if the client went away mid-stream, so
// the next message is never flagged as the start of a session again.
package room
