// Package security builds the response headers attached to every proxied
// page.
package security

import (
	"net/http"
	"strings"
)

// HTMLContentType is the content type of every proxied page.
const HTMLContentType = "text/html; charset=UTF-8"

// ContentSecurityPolicy returns the policy for pages served from origin.
// Resources, scripts and connections are confined to the proxy itself, with
// data: and blob: allowed for media. base-uri also admits http(s) so the
// injected <base> element pointing at the upstream page is honored.
func ContentSecurityPolicy(origin string) string {
	self := "'self' " + origin
	media := self + " data: blob:"
	directives := []string{
		"default-src " + media,
		"img-src " + media,
		"media-src " + media,
		"font-src " + media,
		"style-src " + self + " 'unsafe-inline'",
		"script-src " + self + " 'unsafe-inline'",
		"connect-src " + self,
		"frame-src " + self,
		"object-src 'none'",
		"base-uri " + self + " https: http:",
		"form-action " + self,
		"frame-ancestors 'self'",
	}
	return strings.Join(directives, "; ")
}

// Headers returns the full header set for a page served from origin.
func Headers(origin string) http.Header {
	h := make(http.Header, 5)
	h.Set("Content-Type", HTMLContentType)
	h.Set("Content-Security-Policy", ContentSecurityPolicy(origin))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "SAMEORIGIN")
	h.Set("Referrer-Policy", "no-referrer")
	return h
}

// Apply copies the page headers for origin onto dst, replacing existing values.
func Apply(dst http.Header, origin string) {
	for k, v := range Headers(origin) {
		dst[k] = v
	}
}
