// Package config handles configuration loading for bing-cell.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BING_CELL_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/bing-cell/config.yaml
//  3. ~/.config/bing-cell/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${BING_CELL_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/bing-cell/rooms.db"
//
//	auth:
//	  mode: "jwt"            # jwt, header, none
//	  jwt_secret: "${BING_CELL_JWT_SECRET}"
//	  user_header: "X-User-Id"
//
//	bing:
//	  create_url: "https://www.bing.com/turing/conversation/create"
//	  chathub_url: "wss://sydney.bing.com/sydney/ChatHub"
//	  template_path: ""      # empty uses the embedded send.json
//	  proxy_url: "http://127.0.0.1:7890"
//	  headers:
//	    X-Forwarded-For: "${BING_CELL_FORWARDED_FOR}"
//	  request_timeout: "30s"
//	  reply_timeout: "3m"
//
//	negotiation:
//	  max_attempts: 3        # retries of rejected sessions
//	  retry_backoff: "1s"
//	  per_minute: 30         # outbound negotiation rate limit
//
//	logging:
//	  level: "info"          # debug, info, warn, error
//	  format: "text"         # text, json
//
// # Validation
//
// Load() validates:
//
//   - server.http_addr unless tailscale is enabled
//   - database.path
//   - auth.mode, and a 32 byte minimum jwt_secret in jwt mode
//   - bing.proxy_url syntax
//   - duration format validity
package config
