package infra

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPClientBoundsHangingUpstream(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()
	defer close(release)

	client := NewHTTPClient(HTTPClientOptions{ConnectTimeout: time.Second, Timeout: 100 * time.Millisecond})
	start := time.Now()
	resp, err := client.Get(ts.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("client did not honor timeout, took %s", elapsed)
	}
}

func TestNewHTTPClientDefaults(t *testing.T) {
	client := NewHTTPClient(HTTPClientOptions{})
	if client.Timeout != 120*time.Second {
		t.Fatalf("Timeout = %s, want 120s", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport %T", client.Transport)
	}
	if transport.TLSHandshakeTimeout != 10*time.Second {
		t.Fatalf("TLSHandshakeTimeout = %s, want 10s", transport.TLSHandshakeTimeout)
	}
}
