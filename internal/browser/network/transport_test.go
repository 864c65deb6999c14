// internal/browser/network/transport_test.go
package network

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

func TestNewTransportDefaults(t *testing.T) {
	tr := NewTransport(config.BrowserConfig{}, nil)

	assert.True(t, tr.DisableCompression, "pages decode content themselves")
	assert.True(t, tr.ForceAttemptHTTP2)
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, []string{"h2", "http/1.1"}, tr.TLSClientConfig.NextProtos)
}

func TestNewTransportSelfSignedTarget(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	strict := &http.Client{Transport: NewTransport(config.BrowserConfig{}, zaptest.NewLogger(t))}
	_, err := strict.Get(srv.URL)
	assert.Error(t, err, "unknown authority must be rejected by default")

	lenient := &http.Client{Transport: NewTransport(config.BrowserConfig{IgnoreTLSErrors: true}, zaptest.NewLogger(t))}
	resp, err := lenient.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
