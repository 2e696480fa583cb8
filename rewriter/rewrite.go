// Package rewriter turns a rendered upstream document into one whose every
// subresource reference and runtime request re-enters the proxy.
package rewriter

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	whatwgUrl "github.com/nlnwa/whatwg-url/url"
	"golang.org/x/net/html"

	"github.com/use-agent/shieldsup/resolver"
)

// resourceAttrs are the attributes whose values are rewritten.
var resourceAttrs = []string{"src", "href", "poster", "data-src", "data-href"}

// resourceSelector matches any element carrying at least one resource attribute.
var resourceSelector = cascadia.MustCompile("[src], [href], [poster], [data-src], [data-href]")

// Rewriter rewrites documents for one proxy origin. It is safe for
// concurrent use.
type Rewriter struct {
	origin string
}

// New creates a Rewriter that points every rewritten reference at origin.
func New(origin string) *Rewriter {
	return &Rewriter{origin: strings.TrimRight(origin, "/")}
}

// Origin returns the proxy origin the rewriter emits.
func (rw *Rewriter) Origin() string { return rw.origin }

// Process rewrites doc's resource attributes against base and injects the
// client shim as the last child of head. It is the full transformation applied
// before a page is cached.
//
// The shim is placed in the parsed tree, so markup-looking text inside inline
// scripts or comments never decides where it lands. A document that cannot be
// parsed falls back to textual injection.
func (rw *Rewriter) Process(doc string, base *whatwgUrl.Url) string {
	baseHref := ""
	if base != nil {
		baseHref = base.Href(false)
	}
	shim := Shim(rw.origin, baseHref)

	d, err := rw.rewriteTree(doc, base)
	if err != nil {
		slog.Warn("rewrite: parse failed, serving document unrewritten", "error", err)
		return InjectShim(doc, shim)
	}
	if head := d.Find("head").First(); head.Length() > 0 {
		head.AppendHtml(shim)
	} else {
		d.Find("body").First().PrependHtml(shim)
	}

	out, err := d.Html()
	if err != nil {
		slog.Warn("rewrite: render failed, serving document unrewritten", "error", err)
		return InjectShim(doc, shim)
	}
	return out
}

// Rewrite replaces every resource attribute whose value resolves to an
// absolute http(s) URL with its proxy-relative form.
//
// The document is parsed into a tree, attributes are rewritten by name, and
// the tree is serialized again, so quoting style in the input does not matter.
// Values that do not resolve, non-http schemes (javascript:, data:, mailto:),
// fragment-only links and values already pointing at this proxy are left as
// they are. If the document cannot be parsed or serialized it is returned
// unchanged.
func (rw *Rewriter) Rewrite(doc string, base *whatwgUrl.Url) string {
	d, err := rw.rewriteTree(doc, base)
	if err != nil {
		slog.Warn("rewrite: parse failed, serving document unrewritten", "error", err)
		return doc
	}
	out, err := d.Html()
	if err != nil {
		slog.Warn("rewrite: render failed, serving document unrewritten", "error", err)
		return doc
	}
	return out
}

func (rw *Rewriter) rewriteTree(doc string, base *whatwgUrl.Url) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}

	d := goquery.NewDocumentFromNode(root)
	d.FindMatcher(resourceSelector).Each(func(_ int, s *goquery.Selection) {
		for _, name := range resourceAttrs {
			val, ok := s.Attr(name)
			if !ok {
				continue
			}
			if proxied, ok := rw.proxify(base, val); ok {
				s.SetAttr(name, proxied)
			}
		}
	})
	return d, nil
}

// proxify returns the proxy URL for one attribute value, or false when the
// value must stay untouched.
func (rw *Rewriter) proxify(base *whatwgUrl.Url, raw string) (string, bool) {
	ref := strings.TrimSpace(raw)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	if resolver.IsProxied(rw.origin, ref) {
		return "", false
	}

	abs := resolver.Resolve(base, ref)
	if abs == nil {
		slog.Debug("rewrite: leaving unresolvable reference", "value", ref)
		return "", false
	}
	if !resolver.IsHTTP(abs) {
		return "", false
	}

	target := abs.Href(false)
	if resolver.IsProxied(rw.origin, target) {
		return "", false
	}
	return resolver.ProxyURL(rw.origin, target), true
}
