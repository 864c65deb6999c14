// internal/browser/network/transport.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

// Timeouts and pool sizes tuned for page loads rather than API traffic.
const (
	DefaultDialTimeout           = 15 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second

	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
)

// SecureMinTLSVersion is the lowest TLS version negotiated.
const SecureMinTLSVersion = tls.VersionTLS12

// NewTransport builds the transport shared by all pages of a driver that
// speaks HTTP itself. Content decoding is left to the caller, which must
// advertise and undo Accept-Encoding on its own.
func NewTransport(cfg config.BrowserConfig, logger *zap.Logger) *http.Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := &net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
	}

	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig(cfg.IgnoreTLSErrors),
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
	if cfg.IgnoreTLSErrors {
		logger.Warn("TLS certificate verification is disabled.")
	}
	return t
}

func tlsConfig(insecure bool) *tls.Config {
	return &tls.Config{
		MinVersion: SecureMinTLSVersion,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		ClientSessionCache: tls.NewLRUClientSessionCache(256),
		// h2 first so that HTTP/2 is preferred.
		NextProtos:         []string{"h2", "http/1.1"},
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in for self-signed test targets
	}
}
