package cache

// DefaultContentType is used when the upstream response carries no
// Content-Type header.
const DefaultContentType = "application/octet-stream"

// Asset is a fetched subresource: the exact upstream bytes after ad-block
// filtering, and the upstream content type.
type Asset struct {
	Body        []byte
	ContentType string
}

// Pages holds fully rewritten HTML documents keyed by target URL.
type Pages = Store[string]

// Assets holds fetched subresources keyed by target URL.
type Assets = Store[Asset]
