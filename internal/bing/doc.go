// Package bing relays chat sessions to the Bing conversational service.
//
// # Overview
//
// The package holds the three pieces of protocol logic a room needs to talk to
// Bing, plus the transport plumbing around them:
//
//   - Negotiator: opens a new conversation and validates the creation result
//   - Builder: renders the ChatHub request body from a Template and a Session
//   - Relay: forwards one reply fragment to an open client stream
//   - Hub: sends a built request over the ChatHub WebSocket and yields fragments
//
// # Sessions
//
// A Session carries the conversation id, signature, client id and the number of
// user messages already sent. The package only reads it. Incrementing the count
// belongs to the caller, after the hub accepted the message:
//
//	sess, err := negotiator.CreateConversation(ctx, roomID)
//	body, err := builder.BuildRequest(sess, "hello")
//	reply, err := hub.Send(ctx, body, func(chunk string) error {
//	    return bing.Relay(ctx, stream, chunk)
//	})
//	if reply != nil && reply.Accepted {
//	    sess.NumUserMessages++
//	}
//
// # Start of session
//
// The first element of the request's "arguments" list carries
// isStartOfSession. It must be true for the first message only: false on the
// first message is rejected by the service, true afterwards makes it repeat its
// first answer. The builder derives it from NumUserMessages alone.
//
// # Errors
//
//   - ErrSessionCreationFailed: transport or HTTP failure while negotiating
//   - ErrSessionRejected: the service answered with a non-Success status (retryable)
//   - ErrTemplateMalformed: the rendered request is not usable (configuration defect)
//   - ErrRelayWriteFailed: the client stream rejected a write
//
// None of them are retried inside this package.
//
// # Outbound transport
//
// The service enforces origin policies, so deployments usually route traffic
// through a proxy. NewHTTPClient composes Configurators (proxy, static headers)
// into the client shared by the negotiator and the hub.
package bing
