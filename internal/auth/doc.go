// Package auth carries the caller's identity through request handling.
//
// # Overview
//
// The cell does not manage users. Requests arrive already authenticated by
// the admin backend, which either forwards the user id in a trusted header
// or hands the client an HS256 token whose "sub" claim is the user id.
//
// # Modes
//
//	auth:
//	  mode: "jwt"                      # jwt | header | none
//	  jwt_secret: "${BING_CELL_JWT_SECRET}"
//	  user_header: "X-User-Id"         # header mode only
//
// # Context
//
// Middleware attaches an *Identity to the request context:
//
//	id := auth.FromContext(ctx)   // nil when absent
//	userID := auth.UserID(ctx)    // "" when absent
//
// Negotiation and relay logging read UserID so every failure carries the
// caller alongside the room.
package auth
