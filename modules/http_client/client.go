// Package http_client creates the shared *http.Client injected into every
// download step of a fetch run.
package http_client

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/vk/vgprep/internal/ctxlog"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "vgprep"

// Input defines the settings of the shared client.
type Input struct {
	// Timeout bounds a whole request. Empty means no client-side limit,
	// leaving per-step timeouts in charge of large archives.
	Timeout   string
	UserAgent string
}

// Create returns a live *http.Client shared by all steps of a run.
func Create(ctx context.Context, input *Input) (*http.Client, error) {
	var timeout time.Duration
	if input.Timeout != "" {
		var err error
		if timeout, err = time.ParseDuration(input.Timeout); err != nil {
			return nil, err
		}
	}
	userAgent := input.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}

	ctxlog.FromContext(ctx).Debug("HTTP client created.", "timeout", timeout, "user_agent", userAgent)
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: transport, userAgent: userAgent},
	}, nil
}

// Destroy closes the idle connections of a client made by Create.
func Destroy(client *http.Client) error {
	client.CloseIdleConnections()
	return nil
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// wrapped transport.
func (t *userAgentTransport) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
