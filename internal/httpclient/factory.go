// Package httpclient builds the HTTP client used to probe the metadata CDN
// and the Prober that classifies its responses.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
)

// ClientConfig configures the probe HTTP client
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
	BlockPrivate        bool // If true, refuses to dial private addresses
	MaxRedirects        int
}

// FromConfig maps the http section of the run configuration.
func FromConfig(cfg config.HTTPConfig) ClientConfig {
	return ClientConfig{
		Timeout:             cfg.Timeout,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		BlockPrivate:        cfg.BlockPrivate,
		MaxRedirects:        5,
	}
}

// NewClient creates an HTTP client whose idle pool is sized for many
// concurrent requests against a single host.
func NewClient(cfg ClientConfig) *http.Client {
	idle := cfg.MaxIdleConnsPerHost
	if idle <= 0 {
		idle = 10
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cfg.BlockPrivate {
				if err := validateAddress(ctx, addr); err != nil {
					return nil, fmt.Errorf("private address blocked: %w", err)
				}
			}

			var dialer net.Dialer
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	if cfg.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			if cfg.BlockPrivate {
				if err := validateURL(req.Context(), req.URL); err != nil {
					return fmt.Errorf("private address blocked on redirect: %w", err)
				}
			}
			return nil
		}
	}

	return client
}

// validateAddress checks if an address points to a private IP
func validateAddress(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}

	for _, ip := range ips {
		if isPrivateIP(ip.IP) {
			return fmt.Errorf("%s resolves to %s", host, ip.IP)
		}
	}

	return nil
}

func validateURL(ctx context.Context, u *url.URL) error {
	return validateAddress(ctx, u.Host)
}

// isPrivateIP checks if an IP address is private, loopback, or link-local
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// DoWithContext performs an HTTP request with context enforcement
func DoWithContext(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, err
	}

	return resp, nil
}

// maxDrainBytes bounds how much of an unread body CloseBody consumes to keep
// the connection reusable. Larger remainders are dropped with the connection.
const maxDrainBytes = 64 << 10

// CloseBody drains at most maxDrainBytes of a response body and closes it.
func CloseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
	_ = resp.Body.Close()
}
