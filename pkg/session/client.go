package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds one request including the body read.
	DefaultTimeout = 10 * time.Second
	// DefaultConnectRetries is how many times association is attempted.
	DefaultConnectRetries = 5
	// DefaultConnectTimeout bounds one association attempt.
	DefaultConnectTimeout = 5 * time.Second
)

// Client is the reusable request handle owned by a Session.
type Client interface {
	Get(ctx context.Context, url string) (*http.Response, error)
	Close() error
}

// Factory builds a fresh Client. One attempt per call.
type Factory func() (Client, error)

// Associator brings the network up. It may block until connectivity is
// available or attempts run out.
type Associator interface {
	Associate(ctx context.Context) error
}

// HTTPClient is a Client over net/http bound to the base authority. Every
// request opens its own connection and closes it once the body is closed.
type HTTPClient struct {
	base *url.URL
	tr   *http.Transport
	c    *http.Client
}

// NewHTTPFactory returns a Factory producing HTTPClients for base.
func NewHTTPFactory(base string, timeout time.Duration) Factory {
	return func() (Client, error) {
		return NewHTTPClient(base, timeout)
	}
}

// NewHTTPClient creates a client bound to the authority of base.
func NewHTTPClient(base string, timeout time.Duration) (*HTTPClient, error) {
	u, err := parseBase(base)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// One connection per request; only the client outlives Perform.
	tr := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DisableCompression: true, // keep Content-Length meaningful
		DisableKeepAlives:  true,
		MaxConnsPerHost:    1,
	}
	return &HTTPClient{
		base: u,
		tr:   tr,
		c:    &http.Client{Transport: tr, Timeout: timeout},
	}, nil
}

// Get implements Client.
func (h *HTTPClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if req.URL.Host != h.base.Host {
		return nil, fmt.Errorf("url host %q does not match session authority %q", req.URL.Host, h.base.Host)
	}
	req.Close = true
	return h.c.Do(req)
}

// Close drops pooled connections.
func (h *HTTPClient) Close() error {
	h.tr.CloseIdleConnections()
	return nil
}

// TCPAssociator checks that the base authority is reachable, retrying a fixed
// number of times.
type TCPAssociator struct {
	Addr    string
	Retries int
	Timeout time.Duration
	Backoff time.Duration

	// Heartbeat, if set, is called before every attempt so a liveness
	// watchdog keeps being fed while association blocks the loop.
	Heartbeat func()

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTCPAssociator derives host:port from base.
func NewTCPAssociator(base string, retries int, timeout time.Duration) (*TCPAssociator, error) {
	u, err := parseBase(base)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if retries <= 0 {
		retries = DefaultConnectRetries
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	d := &net.Dialer{}
	return &TCPAssociator{
		Addr:    net.JoinHostPort(u.Hostname(), port),
		Retries: retries,
		Timeout: timeout,
		Backoff: time.Second,
		dial:    d.DialContext,
	}, nil
}

// Associate implements Associator.
func (a *TCPAssociator) Associate(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= a.Retries; attempt++ {
		if a.Heartbeat != nil {
			a.Heartbeat()
		}
		dctx, cancel := context.WithTimeout(ctx, a.Timeout)
		conn, err := a.dial(dctx, "tcp", a.Addr)
		cancel()
		if err == nil {
			conn.Close()
			log.Info().Str("addr", a.Addr).Int("attempt", attempt).Msg("network reachable")
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("addr", a.Addr).Int("attempt", attempt).Msg("network not reachable, retrying")

		if attempt == a.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.Backoff):
		}
	}
	return fmt.Errorf("failed to reach %s after %d attempts: %w", a.Addr, a.Retries, lastErr)
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("base url must be absolute: " + base)
	}
	return u, nil
}
