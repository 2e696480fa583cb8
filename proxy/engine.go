// Package proxy implements the two request flows of the filtering proxy:
// rendering and rewriting pages, and fetching assets. Both consult their
// cache first and otherwise drive one isolated browser session with ad and
// hard-block interception installed before navigation.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/use-agent/shieldsup/adblock"
	"github.com/use-agent/shieldsup/browser"
	"github.com/use-agent/shieldsup/cache"
	"github.com/use-agent/shieldsup/metrics"
	"github.com/use-agent/shieldsup/models"
	"github.com/use-agent/shieldsup/rewriter"
)

// CacheStatus is reported to clients in the X-Proxy-Cache header.
type CacheStatus string

const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
)

const (
	kindPage  = "page"
	kindAsset = "asset"
)

// AgentSource hands out the shared rendering agent.
type AgentSource interface {
	Get(ctx context.Context) (browser.Agent, error)
}

// SessionFilter installs request blocking on a fresh session.
type SessionFilter interface {
	Attach(s browser.Session)
}

// Options configures an Engine. Agents, Pages and Assets are required.
type Options struct {
	// Origin is the public base URL of the proxy, without trailing slash.
	Origin string

	Agents    AgentSource
	Blocker   SessionFilter // nil when ad-block lists are disabled
	HardBlock adblock.HardBlockList

	Pages  *cache.Pages
	Assets *cache.Assets

	PageTimeout  time.Duration
	AssetTimeout time.Duration

	// Coalesce shares one upstream fetch between concurrent misses for the
	// same target.
	Coalesce bool

	Metrics *metrics.Metrics
}

// Engine serves pages and assets. It is safe for concurrent use.
type Engine struct {
	origin    string
	agents    AgentSource
	blocker   SessionFilter
	hardBlock adblock.HardBlockList
	pages     *cache.Pages
	assets    *cache.Assets
	rewriter  *rewriter.Rewriter
	metrics   *metrics.Metrics

	pageTimeout  time.Duration
	assetTimeout time.Duration

	coalesce bool
	group    singleflight.Group
}

// New creates an Engine.
func New(opts Options) *Engine {
	origin := strings.TrimRight(opts.Origin, "/")
	return &Engine{
		origin:       origin,
		agents:       opts.Agents,
		blocker:      opts.Blocker,
		hardBlock:    opts.HardBlock,
		pages:        opts.Pages,
		assets:       opts.Assets,
		rewriter:     rewriter.New(origin),
		metrics:      opts.Metrics,
		pageTimeout:  opts.PageTimeout,
		assetTimeout: opts.AssetTimeout,
		coalesce:     opts.Coalesce,
	}
}

// Origin returns the public base URL the engine rewrites references to.
func (e *Engine) Origin() string { return e.origin }

// AssetTTL returns how long fetched assets stay cached.
func (e *Engine) AssetTTL() time.Duration { return e.assets.TTL() }

// withSession opens a session on the shared agent, installs interception
// and runs fn. The session is closed on every path.
func (e *Engine) withSession(ctx context.Context, fn func(browser.Session) error) error {
	agent, err := e.agents.Get(ctx)
	if err != nil {
		return models.NewProxyError(models.ErrCodeBrowserUnavailable, "browser unavailable", err)
	}
	s, err := agent.NewSession(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return models.NewProxyError(models.ErrCodeBrowserUnavailable, "failed to open browser session", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			slog.Debug("session close failed", "error", cerr)
		}
	}()

	if e.blocker != nil {
		e.blocker.Attach(s)
	}
	if len(e.hardBlock) > 0 {
		s.InterceptRequests(func(requestURL string) bool {
			if e.hardBlock.Blocks(requestURL) {
				e.metrics.HardBlock()
				return true
			}
			return false
		})
	}
	return fn(s)
}

// shared runs fn directly, or through the singleflight group when
// coalescing is on. A coalesced fetch is detached from the first caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func (e *Engine) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if !e.coalesce {
		return fn(ctx)
	}
	ch := e.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, categorize(ctx.Err(), "request canceled")
	}
}

// categorize maps an upstream error to a ProxyError, keeping an existing
// code when err already carries one.
func categorize(err error, msg string) *models.ProxyError {
	var pe *models.ProxyError
	switch {
	case errors.As(err, &pe):
		return pe
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewProxyError(models.ErrCodeUpstreamTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewProxyError(models.ErrCodeUpstreamTimeout, "request canceled", err)
	default:
		return models.NewProxyError(models.ErrCodeUpstreamFailure, msg, err)
	}
}

func outcome(err *models.ProxyError) string {
	switch err.Code {
	case models.ErrCodeUpstreamTimeout:
		return metrics.OutcomeTimeout
	case models.ErrCodeUpstreamNoResponse:
		return metrics.OutcomeNoResponse
	default:
		return metrics.OutcomeFailure
	}
}

func invalidTarget(err error) *models.ProxyError {
	return models.NewProxyError(models.ErrCodeInvalidInput, "url must be an absolute http(s) URL", err)
}

// CacheSizes returns the number of entries held by the page and asset
// caches.
func (e *Engine) CacheSizes() (pages, assets int) {
	return e.pages.Len(), e.assets.Len()
}
