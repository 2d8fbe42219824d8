package client

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Headers forwarded to fragments on the same origin as the inbound request.
var sameOriginHeaders = []string{
	"Accept-Language",
	"Cache-Control",
	"Cookie",
	"Authorization",
	"Referer",
}

// Headers forwarded to fragments on any other origin.
var crossOriginHeaders = []string{
	"Accept-Language",
	"Cache-Control",
}

// Origin describes the inbound request includes are resolved for.
type Origin struct {
	// URL is the absolute URL of the inbound request. Relative include
	// URLs are resolved against it.
	URL *url.URL

	// Host is the inbound Host header (host[:port]).
	Host string

	// Scheme is "http" or "https".
	Scheme string

	// Header holds the inbound request headers.
	Header http.Header
}

// OriginFromRequest builds the Origin of an inbound server request.
// The scheme is https when the connection used TLS or a proxy in front
// reported X-Forwarded-Proto: https.
func OriginFromRequest(r *http.Request) Origin {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}

	u := *r.URL
	u.Scheme = scheme
	u.Host = r.Host

	return Origin{
		URL:    &u,
		Host:   r.Host,
		Scheme: scheme,
		Header: r.Header,
	}
}

// RequireSSL reports whether includes must be fetched over HTTPS.
func (o Origin) RequireSSL() bool {
	return o.Scheme != "" && !strings.EqualFold(o.Scheme, "http")
}

// SameOrigin reports whether target has the inbound request's scheme and
// host:port, with default ports made explicit.
func (o Origin) SameOrigin(target *url.URL) bool {
	if o.Host == "" || !strings.EqualFold(target.Scheme, o.Scheme) {
		return false
	}
	return normalizeHostPort(target.Host, target.Scheme) == normalizeHostPort(o.Host, o.Scheme)
}

// ForwardHeaders selects the inbound headers that are passed on to target.
func (o Origin) ForwardHeaders(target *url.URL) http.Header {
	names := crossOriginHeaders
	if o.SameOrigin(target) {
		names = sameOriginHeaders
	}

	header := make(http.Header, len(names))
	for _, name := range names {
		if values := o.Header.Values(name); len(values) > 0 {
			header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	return header
}

func normalizeHostPort(hostport, scheme string) string {
	hostport = strings.ToLower(hostport)
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	port := "80"
	if strings.EqualFold(scheme, "https") {
		port = "443"
	}
	return net.JoinHostPort(strings.Trim(hostport, "[]"), port)
}
