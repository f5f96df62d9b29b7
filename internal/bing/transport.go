// ABOUTME: Pluggable outbound transport configuration for calls to the remote service
// ABOUTME: Proxy routing and static headers compose into one *http.Client

package bing

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Configurator adjusts the transport used for outbound calls.
type Configurator interface {
	Configure(t *http.Transport) error
}

// RequestDecorator is implemented by configurators that also touch each request.
type RequestDecorator interface {
	Decorate(req *http.Request)
}

// ProxyConfigurator routes every outbound request through a fixed proxy.
type ProxyConfigurator struct {
	URL *url.URL
}

// NewProxyConfigurator parses rawURL (http, https or socks5).
func NewProxyConfigurator(rawURL string) (*ProxyConfigurator, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("proxy url has no host")
	}
	return &ProxyConfigurator{URL: u}, nil
}

// Configure implements Configurator.
func (p *ProxyConfigurator) Configure(t *http.Transport) error {
	if p.URL == nil {
		return errors.New("proxy url is nil")
	}
	t.Proxy = http.ProxyURL(p.URL)
	return nil
}

// HeaderConfigurator sets static headers on every outbound request.
type HeaderConfigurator struct {
	Headers map[string]string
}

// Configure implements Configurator. Headers are applied by Decorate.
func (h *HeaderConfigurator) Configure(*http.Transport) error { return nil }

// Decorate implements RequestDecorator.
func (h *HeaderConfigurator) Decorate(req *http.Request) {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
}

// decoratingTransport applies decorators to a clone of each request.
type decoratingTransport struct {
	base       http.RoundTripper
	decorators []RequestDecorator
}

func (d *decoratingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for _, dec := range d.decorators {
		dec.Decorate(r)
	}
	return d.base.RoundTrip(r)
}

// NewHTTPClient builds a client whose transport was passed through each
// configurator in order. A zero timeout leaves the client without one; the
// ChatHub connection is long-lived and relies on ctx instead.
func NewHTTPClient(timeout time.Duration, configurators ...Configurator) (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("default transport is not *http.Transport")
	}
	t := base.Clone()

	var decorators []RequestDecorator
	for _, c := range configurators {
		if c == nil {
			continue
		}
		if err := c.Configure(t); err != nil {
			return nil, fmt.Errorf("configuring transport: %w", err)
		}
		if d, ok := c.(RequestDecorator); ok {
			decorators = append(decorators, d)
		}
	}

	var rt http.RoundTripper = t
	if len(decorators) > 0 {
		rt = &decoratingTransport{base: t, decorators: decorators}
	}
	return &http.Client{Transport: rt, Timeout: timeout}, nil
}
