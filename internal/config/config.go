// ABOUTME: Configuration loading and parsing for bing-cell
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultNegotiationMaxAttempts = 3
	DefaultNegotiationBackoff     = time.Second
	DefaultNegotiationPerMinute   = 30
	DefaultRequestTimeout         = 30 * time.Second
	DefaultReplyTimeout           = 3 * time.Minute
)

// Config represents the complete bing-cell configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Bing        BingConfig        `yaml:"bing"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig selects how callers are identified
type AuthConfig struct {
	Mode       string `yaml:"mode"` // jwt, header, none
	JWTSecret  string `yaml:"jwt_secret"`
	UserHeader string `yaml:"user_header"`
}

// BingConfig holds the remote service endpoints and outbound transport settings
type BingConfig struct {
	CreateURL    string `yaml:"create_url"`
	ChatHubURL   string `yaml:"chathub_url"`
	TemplatePath string `yaml:"template_path"` // empty uses the embedded template

	// ProxyURL routes every outbound call through this proxy when set.
	ProxyURL string            `yaml:"proxy_url"`
	Headers  map[string]string `yaml:"headers"`

	RequestTimeout time.Duration `yaml:"-"`
	ReplyTimeout   time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
	ReplyTimeoutRaw   string `yaml:"reply_timeout"`
}

// NegotiationConfig is the caller-side retry policy for rejected sessions
type NegotiationConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	PerMinute   int `yaml:"per_minute"`

	RetryBackoff    time.Duration `yaml:"-"`
	RetryBackoffRaw string        `yaml:"retry_backoff"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Auth.Mode == "" {
		c.Auth.Mode = "none"
	}
	if c.Bing.RequestTimeout == 0 {
		c.Bing.RequestTimeout = DefaultRequestTimeout
	}
	if c.Bing.ReplyTimeout == 0 {
		c.Bing.ReplyTimeout = DefaultReplyTimeout
	}
	if c.Negotiation.MaxAttempts == 0 {
		c.Negotiation.MaxAttempts = DefaultNegotiationMaxAttempts
	}
	if c.Negotiation.RetryBackoff == 0 {
		c.Negotiation.RetryBackoff = DefaultNegotiationBackoff
	}
	if c.Negotiation.PerMinute == 0 {
		c.Negotiation.PerMinute = DefaultNegotiationPerMinute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Auth.Mode {
	case "none", "header":
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 bytes in jwt mode")
		}
	default:
		return fmt.Errorf("auth.mode %q is not one of jwt, header, none", c.Auth.Mode)
	}

	if c.Bing.ProxyURL != "" {
		u, err := url.Parse(c.Bing.ProxyURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("bing.proxy_url %q is not a valid URL", c.Bing.ProxyURL)
		}
	}

	if c.Negotiation.MaxAttempts < 1 {
		return fmt.Errorf("negotiation.max_attempts must be at least 1")
	}
	if c.Negotiation.PerMinute < 1 {
		return fmt.Errorf("negotiation.per_minute must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"bing.request_timeout", cfg.Bing.RequestTimeoutRaw, &cfg.Bing.RequestTimeout},
		{"bing.reply_timeout", cfg.Bing.ReplyTimeoutRaw, &cfg.Bing.ReplyTimeout},
		{"negotiation.retry_backoff", cfg.Negotiation.RetryBackoffRaw, &cfg.Negotiation.RetryBackoff},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
