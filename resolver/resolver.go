// Package resolver absolutizes references found in upstream markup, decides
// whether a target URL is a page or an asset, and builds the proxy-relative
// URLs that route traffic back through this server.
package resolver

import (
	"errors"
	"net/url"
	"path"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// parser follows the WHATWG URL Standard, the same algorithm the browser and
// the client shim apply: backslashes act as slashes in http(s) URLs, tabs and
// newlines are removed and a stray "%" is kept as is.
var parser = whatwgUrl.NewParser()

// Kind is the routing classification of a target URL.
type Kind int

const (
	// HTMLLike targets are rendered and rewritten by the page endpoint.
	HTMLLike Kind = iota
	// AssetLike targets are fetched and served as opaque bytes.
	AssetLike
)

func (k Kind) String() string {
	if k == AssetLike {
		return "asset"
	}
	return "html"
}

// Endpoint paths served by the proxy.
const (
	AssetPath = "/asset"
	PagePath  = "/proxy"
)

// ErrInvalidTarget is returned by ValidateTarget for anything that is not an
// absolute http(s) URL.
var ErrInvalidTarget = errors.New("target must be an absolute http(s) URL")

// htmlExtensions are path extensions that always denote a server-rendered page.
var htmlExtensions = map[string]struct{}{
	".html": {},
	".htm":  {},
	".php":  {},
	".asp":  {},
	".aspx": {},
	".jsp":  {},
	".do":   {},
}

// ValidateTarget parses raw and accepts it only when it is a syntactically
// valid absolute http or https URL with a host.
func ValidateTarget(raw string) (*whatwgUrl.Url, error) {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, ErrInvalidTarget
	}
	u, err := parser.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil, ErrInvalidTarget
	}
	return u, nil
}

// Resolve resolves ref against base the way a browser resolves an attribute
// value. It returns nil when ref (or base) is malformed, which callers treat
// as "leave the reference as it is".
func Resolve(base *whatwgUrl.Url, ref string) *whatwgUrl.Url {
	if base == nil {
		return nil
	}
	u, err := parser.ParseRef(base.Href(false), ref)
	if err != nil {
		return nil
	}
	return u
}

// IsHTTP reports whether u uses the http or https scheme.
func IsHTTP(u *whatwgUrl.Url) bool {
	p := u.Protocol()
	return p == "http:" || p == "https:"
}

// Classify reports whether u should be rendered as a page or fetched as an
// asset. Paths ending in a markup/script-page extension, or whose last
// segment has no extension at all, are HTMLLike.
func Classify(u *whatwgUrl.Url) Kind {
	ext := strings.ToLower(path.Ext(u.Pathname()))
	if ext == "" {
		return HTMLLike
	}
	if _, ok := htmlExtensions[ext]; ok {
		return HTMLLike
	}
	return AssetLike
}

// ClassifyString parses raw and classifies it. Unparseable input is HTMLLike
// so that it ends up at the page endpoint, which rejects it.
func ClassifyString(raw string) Kind {
	u, err := parser.Parse(raw)
	if err != nil {
		return HTMLLike
	}
	return Classify(u)
}

// ProxyURL returns the asset-endpoint URL carrying abs as its url parameter.
// Distinct inputs always produce distinct outputs.
func ProxyURL(origin, abs string) string {
	return origin + AssetPath + "?url=" + url.QueryEscape(abs)
}

// PageURL returns the page-endpoint URL carrying abs as its url parameter.
func PageURL(origin, abs string) string {
	return origin + PagePath + "?url=" + url.QueryEscape(abs)
}

// IsProxied reports whether raw already points at one of this proxy's
// endpoints, so that rewriting it again would only nest the URL.
func IsProxied(origin, raw string) bool {
	return strings.HasPrefix(raw, origin+AssetPath+"?url=") ||
		strings.HasPrefix(raw, origin+PagePath+"?url=")
}

// TargetOf extracts the upstream URL carried by a proxy-relative URL.
func TargetOf(proxied string) (string, bool) {
	u, err := url.Parse(proxied)
	if err != nil {
		return "", false
	}
	target := u.Query().Get("url")
	return target, target != ""
}
