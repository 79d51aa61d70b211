package mirror

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/metrics"
)

// fetchHeaderTransport presents requests dialed at the fetch endpoint as if
// they were addressed to the public site, so Ghost renders its usual URLs.
// Every round trip is timed.
type fetchHeaderTransport struct {
	base           http.RoundTripper
	fetchHost      string
	hostHeader     string
	forwardedProto string
}

func (t *fetchHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	defer func() { metrics.ObserveFetch(req.URL.Host, time.Since(start)) }()

	if !strings.EqualFold(req.URL.Host, t.fetchHost) || (t.hostHeader == "" && t.forwardedProto == "") {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	if t.hostHeader != "" {
		clone.Host = t.hostHeader
	}
	if t.forwardedProto != "" {
		clone.Header.Set("X-Forwarded-Proto", t.forwardedProto)
	}
	return t.base.RoundTrip(clone)
}

// redirectLocationHeader carries the Location of a 3xx response past the
// HTTP client, which would otherwise follow it on its own.
const redirectLocationHeader = "X-Mirror-Redirect-Location"

// redirectTransport hides the Location of redirect responses so the client
// hands them back unfollowed and the crawl can send their targets through
// admission.
type redirectTransport struct {
	base http.RoundTripper
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return resp, err
	}
	if location := resp.Header.Get("Location"); location != "" {
		resp.Header.Set(redirectLocationHeader, location)
		resp.Header.Del("Location")
	}
	return resp, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
