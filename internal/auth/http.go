// ABOUTME: HTTP middleware that resolves the caller identity
// ABOUTME: Supports bearer JWTs, a trusted upstream header, or anonymous access

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Mode selects how Middleware identifies callers.
type Mode string

const (
	ModeJWT    Mode = "jwt"
	ModeHeader Mode = "header"
	ModeNone   Mode = "none"
)

// DefaultUserHeader is the trusted header read in header mode.
const DefaultUserHeader = "X-User-Id"

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	Mode       Mode
	Verifier   TokenVerifier // required for ModeJWT
	UserHeader string        // ModeHeader, defaults to DefaultUserHeader
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware returns an HTTP middleware attaching an Identity to each request.
// Requests that cannot be identified are answered with 401.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	header := cfg.UserHeader
	if header == "" {
		header = DefaultUserHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id *Identity
			switch cfg.Mode {
			case ModeJWT:
				token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
				if errMsg != "" {
					writeUnauthorized(w, errMsg)
					return
				}
				userID, err := cfg.Verifier.Verify(token)
				if err != nil {
					writeUnauthorized(w, "invalid token")
					return
				}
				id = &Identity{UserID: userID, Source: string(ModeJWT)}
			case ModeHeader:
				userID := strings.TrimSpace(r.Header.Get(header))
				if userID == "" {
					writeUnauthorized(w, "missing "+header+" header")
					return
				}
				id = &Identity{UserID: userID, Source: string(ModeHeader)}
			default:
				id = &Identity{UserID: "anonymous", Source: "anonymous"}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
