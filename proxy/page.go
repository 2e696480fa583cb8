package proxy

import (
	"context"
	"log/slog"
	"time"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"

	"github.com/use-agent/shieldsup/browser"
	"github.com/use-agent/shieldsup/metrics"
	"github.com/use-agent/shieldsup/resolver"
)

// PageResult is a rewritten document ready to serve.
type PageResult struct {
	HTML  string
	Cache CacheStatus
}

// Page returns the rewritten, shim-injected document for rawTarget.
//
// Lifecycle:
//
//  1. Validate: reject anything but absolute http(s) before touching the browser
//  2. Cache check: serve a stored document byte-for-byte
//  3. Render: isolated session with blockers installed, navigate, wait for network idle
//  4. Rewrite: resource attributes proxied and shim injected, target as base
//  5. Store: cache the final document under rawTarget
func (e *Engine) Page(ctx context.Context, rawTarget string) (*PageResult, error) {
	target, err := resolver.ValidateTarget(rawTarget)
	if err != nil {
		return nil, invalidTarget(err)
	}

	if html, ok := e.pages.Get(rawTarget); ok {
		e.metrics.CacheLookup(metrics.TierPage, true)
		return &PageResult{HTML: html, Cache: CacheHit}, nil
	}
	e.metrics.CacheLookup(metrics.TierPage, false)

	v, err := e.shared(ctx, "page:"+rawTarget, func(ctx context.Context) (any, error) {
		return e.renderPage(ctx, rawTarget, target)
	})
	if err != nil {
		return nil, err
	}
	return &PageResult{HTML: v.(string), Cache: CacheMiss}, nil
}

func (e *Engine) renderPage(ctx context.Context, rawTarget string, target *whatwgUrl.Url) (string, error) {
	log := slog.With("url", rawTarget, "kind", kindPage)
	start := time.Now()

	if e.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.pageTimeout)
		defer cancel()
	}

	var doc string
	err := e.withSession(ctx, func(s browser.Session) error {
		resp, err := s.Navigate(ctx, rawTarget, browser.NavigateOptions{
			Wait:    browser.WaitNetworkIdle,
			Timeout: e.pageTimeout,
		})
		if err != nil {
			return err
		}
		if resp != nil {
			log.Debug("page navigated", "status", resp.StatusCode, "finalURL", resp.URL)
		}
		html, err := s.Content(ctx)
		if err != nil {
			return err
		}
		doc = e.rewriter.Process(html, target)
		return nil
	})
	if err != nil {
		perr := categorize(err, "page render failed")
		e.metrics.UpstreamFetch(kindPage, outcome(perr), time.Since(start))
		log.Warn("page render failed", "code", perr.Code, "error", err)
		return "", perr
	}

	e.metrics.UpstreamFetch(kindPage, metrics.OutcomeOK, time.Since(start))
	log.Info("page rendered", "bytes", len(doc), "elapsed", time.Since(start))

	e.pages.Set(rawTarget, doc)
	return doc, nil
}
