package infra

import (
	"net"
	"net/http"
	"time"
)

// HTTPClientOptions bounds outbound calls. ConnectTimeout applies to dialing
// and the TLS handshake, Timeout to the whole exchange including the body.
type HTTPClientOptions struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// NewHTTPClient builds the client used for every upstream call so that a
// hanging provider cannot block a request forever.
func NewHTTPClient(opts HTTPClientOptions) *http.Client {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 10 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
