package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: newTransport(10 * time.Second),
	}
}

func newTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}
}

// Default returns the shared client for indexing and health checks.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given overall timeout and its own transport.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(10 * time.Second),
	}
}

// ForStreaming returns a client for long-lived media bodies: no overall
// timeout, but connect, TLS and response-header phases are each bounded by
// headerTimeout. Redirects are followed (providers commonly 302 to a
// load-balanced edge).
func ForStreaming(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = 10 * time.Second
	}
	t := newTransport(headerTimeout)
	t.ResponseHeaderTimeout = headerTimeout
	// Media is already compressed; let Range and Content-Length pass untouched.
	t.DisableCompression = true
	return &http.Client{Transport: t}
}
