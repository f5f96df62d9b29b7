// ABOUTME: Entry point for bing-cell, the Bing chat relay server
// ABOUTME: Subcommands: serve, negotiate, token, health

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/bing-cell/internal/auth"
	"github.com/2389/bing-cell/internal/config"
	"github.com/2389/bing-cell/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _     _                                _ _
| |__ (_)_ __   __ _        ___ ___| | |
| '_ \| | '_ \ / _' |_____ / __/ _ \ | |
| |_) | | | | | (_| |_____| (_|  __/ | |
|_.__/|_|_| |_|\__, |      \___\___|_|_|
               |___/
`

// getConfigPath returns the path to the config file.
// Priority: BING_CELL_CONFIG env var > XDG_CONFIG_HOME/bing-cell/config.yaml > ~/.config/bing-cell/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BING_CELL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bing-cell", "config.yaml")
}

func usage() {
	fmt.Println("Usage: bing-cell <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                       Start the relay server")
	fmt.Println("  negotiate [room-id]         Open one Bing conversation and print its identifiers")
	fmt.Println("  token --user ID [--ttl D]   Issue a bearer token (auth.mode: jwt)")
	fmt.Println("  health                      Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "negotiate":
		err = runNegotiate(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Auth:      %s\n", cfg.Auth.Mode)
	if cfg.Bing.ProxyURL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Proxy:     %s\n", redactURL(cfg.Bing.ProxyURL))
	}
	fmt.Println()

	logger.Info("starting bing-cell",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"auth_mode", cfg.Auth.Mode,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runNegotiate opens a single conversation through the configured transport.
// Useful for checking proxy and header settings without starting the server.
func runNegotiate(ctx context.Context, args []string) error {
	roomID := "cli-" + uuid.New().String()[:8]
	switch len(args) {
	case 0:
	case 1:
		roomID = args[0]
	default:
		return fmt.Errorf("unexpected argument: %s", args[1])
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	negotiator, err := gateway.NewNegotiator(cfg, logger)
	if err != nil {
		return err
	}

	ctx = auth.WithIdentity(ctx, &auth.Identity{UserID: "cli", Source: "cli"})
	sess, err := negotiator.CreateConversation(ctx, roomID)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Println("conversation created")
	fmt.Printf("  room_id:                %s\n", roomID)
	fmt.Printf("  conversation_id:        %s\n", sess.ConversationID)
	fmt.Printf("  client_id:              %s\n", sess.ClientID)
	fmt.Printf("  conversation_signature: %s\n", sess.ConversationSignature)
	return nil
}

// runToken issues a JWT for a user id.
// Supports both "--user value" and "--user=value" formats.
func runToken(args []string) error {
	var userID string
	ttl := 24 * time.Hour

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--user requires a value")
			}
			userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			userID = strings.TrimPrefix(arg, "--user=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid --ttl: %w", err)
			}
			ttl = d
			i++
		case strings.HasPrefix(arg, "--ttl="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("invalid --ttl: %w", err)
			}
			ttl = d
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("--user flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.Mode != string(auth.ModeJWT) {
		return fmt.Errorf("auth.mode is %q; tokens are only used in jwt mode", cfg.Auth.Mode)
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(userID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := healthURL(cfg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// healthURL picks the address the server is reachable on.
func healthURL(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		scheme := "http"
		if cfg.Tailscale.HTTPS {
			scheme = "https"
		}
		return fmt.Sprintf("%s://%s/health", scheme, cfg.Tailscale.Hostname)
	}
	return fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
}

// redactURL hides credentials in a URL for display.
func redactURL(raw string) string {
	i := strings.Index(raw, "://")
	at := strings.LastIndex(raw, "@")
	if i < 0 || at < i {
		return raw
	}
	return raw[:i+3] + "***@" + raw[at+1:]
}
