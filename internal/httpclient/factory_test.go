package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
)

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.Default().HTTP)

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 100, cfg.MaxIdleConnsPerHost)
	assert.False(t, cfg.BlockPrivate)

	client := NewClient(cfg)
	assert.Equal(t, 30*time.Second, client.Timeout)
}

func TestBlockPrivate_BlocksLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Timeout: 5 * time.Second, BlockPrivate: true})

	resp, err := client.Get(server.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected loopback request to be blocked")
	}
	assert.Contains(t, err.Error(), "private address blocked")
}

func TestClient_AllowsLoopbackByDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Timeout: 5 * time.Second})

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDoWithContext_RespectsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	resp, err := DoWithContext(ctx, client, req)
	duration := time.Since(start)

	if resp != nil {
		resp.Body.Close()
	}

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.Less(t, duration, 1*time.Second, "Should timeout quickly")
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		{"127.0.0.1", true},      // Loopback
		{"10.0.0.1", true},       // Private
		{"172.16.0.1", true},     // Private
		{"192.168.1.1", true},    // Private
		{"169.254.1.1", true},    // Link-local
		{"0.0.0.0", true},        // Unspecified
		{"::1", true},            // IPv6 loopback
		{"8.8.8.8", false},       // Public
		{"93.184.216.34", false}, // Public
	}

	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		require.NotNil(t, ip, "Failed to parse IP: %s", tt.ip)
		assert.Equal(t, tt.expected, isPrivateIP(ip), "IP: %s", tt.ip)
	}
}

func TestRedirectLimiting(t *testing.T) {
	redirectCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		redirectCount++
		http.Redirect(w, r, "/redirect", http.StatusFound)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Timeout:      5 * time.Second,
		MaxRedirects: 3,
	})

	resp, err := client.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after")
	assert.LessOrEqual(t, redirectCount, 5, "Should stop redirecting")
}

// endlessBody never reaches EOF.
type endlessBody struct {
	read   int64
	closed bool
}

func (b *endlessBody) Read(p []byte) (int, error) {
	b.read += int64(len(p))
	return len(p), nil
}

func (b *endlessBody) Close() error {
	b.closed = true
	return nil
}

func TestCloseBody_BoundsDrain(t *testing.T) {
	body := &endlessBody{}
	CloseBody(&http.Response{Body: body})

	assert.True(t, body.closed)
	assert.Equal(t, int64(maxDrainBytes), body.read)
}

func TestCloseBody_DrainsShortBody(t *testing.T) {
	r := strings.NewReader("<game/>")
	CloseBody(&http.Response{Body: io.NopCloser(r)})
	assert.Zero(t, r.Len())

	CloseBody(nil)
	CloseBody(&http.Response{})
}
