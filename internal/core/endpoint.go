package core

import (
	"net/url"
	"strings"
)

// NormalizeEndpoint canonicalizes a user- or discovery-supplied address into
// a base URL with an explicit scheme and no trailing slash. It never fails;
// malformed input is passed through and left for the network layer to reject.
func NormalizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range []string{"http://", "https://"} {
		if strings.HasPrefix(lower, scheme) {
			// Trailing slashes are trimmed after the scheme only, so a bare
			// "http://" stays put.
			return trimmed[:len(scheme)] + strings.TrimRight(trimmed[len(scheme):], "/")
		}
	}
	return "http://" + strings.TrimRight(trimmed, "/")
}

// Endpoint is a raw address paired with its canonical URL.
type Endpoint struct {
	Raw string `json:"raw"`
	URL string `json:"url"`
}

// NewEndpoint derives an Endpoint from raw input.
func NewEndpoint(raw string) Endpoint {
	return Endpoint{Raw: raw, URL: NormalizeEndpoint(raw)}
}

// Origin returns scheme://host[:port] of the canonical URL.
func (e Endpoint) Origin() string {
	u, err := url.Parse(e.URL)
	if err != nil || u.Host == "" {
		return e.URL
	}
	return u.Scheme + "://" + u.Host
}

// Valid reports whether the canonical URL parses as an absolute http(s) URL
// with a host.
func (e Endpoint) Valid() bool {
	return ValidBaseURL(e.URL)
}

// ValidBaseURL reports whether s is an absolute http(s) URL with a host.
func ValidBaseURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" {
		return false
	}
	// "host:" with no port, as produced by prefixing a foreign scheme.
	if strings.HasSuffix(u.Host, ":") {
		return false
	}
	return true
}
