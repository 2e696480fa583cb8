// Package browser abstracts the headless rendering agent. The proxy core
// only sees Agent and Session; the rod-backed implementation lives in
// rod.go and a scripted fake in browsertest.
package browser

import (
	"context"
	"mime"
	"net/http"
	"time"
)

// BlockFunc decides whether an in-page request must be refused. Blocked
// requests fail inside the browser as if the resource did not exist.
type BlockFunc func(requestURL string) bool

// WaitPolicy is the navigation readiness condition.
type WaitPolicy int

const (
	// WaitNetworkIdle waits until at most two connections stay open for a
	// short quiet period. Used for full page renders.
	WaitNetworkIdle WaitPolicy = iota
	// WaitDOMContentLoaded returns as soon as the document is parsed. Used
	// for asset fetches.
	WaitDOMContentLoaded
)

func (w WaitPolicy) String() string {
	if w == WaitDOMContentLoaded {
		return "domcontentloaded"
	}
	return "networkidle"
}

// NavigateOptions controls a single navigation.
type NavigateOptions struct {
	Wait    WaitPolicy
	Timeout time.Duration

	// CaptureBody records the raw bytes of the navigated document so they
	// are available in Response.Body. Asset fetches set it; page renders
	// read the DOM instead.
	CaptureBody bool
}

// Response describes the main navigation response. Header and Body are only
// populated when the navigation captured the document.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the media type of the response with parameters, or
// "" when the upstream sent none.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	if _, _, err := mime.ParseMediaType(ct); err != nil {
		return ""
	}
	return ct
}

// Session is a request-scoped, isolated tab. It is never reused once closed.
type Session interface {
	// InterceptRequests adds a predicate consulted for every request the
	// page issues. Any predicate returning true blocks the request.
	InterceptRequests(fn BlockFunc)

	// Navigate loads url and waits per opts. The returned Response may be
	// nil when the browser reports no main response.
	Navigate(ctx context.Context, url string, opts NavigateOptions) (*Response, error)

	// Content returns the serialized DOM of the current document.
	Content(ctx context.Context) (string, error)

	// Close releases the tab and its browser context.
	Close() error
}

// Agent creates sessions on a running browser.
type Agent interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}
