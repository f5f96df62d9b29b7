// ABOUTME: Builds the Bing relay components (transport, negotiator, hub, builder) from config
// ABOUTME: Shared by the gateway and the CLI's one-shot negotiate command

package gateway

import (
	"fmt"
	"log/slog"

	"github.com/2389/bing-cell/internal/bing"
	"github.com/2389/bing-cell/internal/config"
)

// transportConfigurators turns the bing config into outbound transport settings.
func transportConfigurators(cfg config.BingConfig) ([]bing.Configurator, error) {
	var confs []bing.Configurator
	if cfg.ProxyURL != "" {
		p, err := bing.NewProxyConfigurator(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		confs = append(confs, p)
	}
	if len(cfg.Headers) > 0 {
		confs = append(confs, &bing.HeaderConfigurator{Headers: cfg.Headers})
	}
	return confs, nil
}

// NewNegotiator creates a Session Negotiator honoring the configured proxy.
func NewNegotiator(cfg *config.Config, logger *slog.Logger) (*bing.Negotiator, error) {
	confs, err := transportConfigurators(cfg.Bing)
	if err != nil {
		return nil, fmt.Errorf("configuring outbound transport: %w", err)
	}
	client, err := bing.NewHTTPClient(cfg.Bing.RequestTimeout, confs...)
	if err != nil {
		return nil, err
	}
	return bing.NewNegotiator(client, cfg.Bing.CreateURL, logger), nil
}

// newHub creates the ChatHub client. Its HTTP client has no timeout; replies
// are bounded by the per-request context instead.
func newHub(cfg *config.Config, logger *slog.Logger) (*bing.Hub, error) {
	confs, err := transportConfigurators(cfg.Bing)
	if err != nil {
		return nil, fmt.Errorf("configuring outbound transport: %w", err)
	}
	client, err := bing.NewHTTPClient(0, confs...)
	if err != nil {
		return nil, err
	}
	return bing.NewHub(client, cfg.Bing.ChatHubURL, logger), nil
}

// newBuilder loads the configured template, or the embedded one.
func newBuilder(cfg *config.Config) (*bing.Builder, error) {
	if cfg.Bing.TemplatePath == "" {
		return bing.NewBuilder(bing.DefaultTemplate()), nil
	}
	tpl, err := bing.LoadTemplate(cfg.Bing.TemplatePath)
	if err != nil {
		return nil, err
	}
	return bing.NewBuilder(tpl), nil
}
