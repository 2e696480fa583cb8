package proxy

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/shieldsup/browser"
	"github.com/use-agent/shieldsup/cache"
	"github.com/use-agent/shieldsup/metrics"
	"github.com/use-agent/shieldsup/models"
	"github.com/use-agent/shieldsup/resolver"
)

// AssetResult is a fetched subresource ready to serve.
type AssetResult struct {
	cache.Asset
	Cache CacheStatus
}

// Asset returns the upstream bytes and content type for rawTarget. Callers
// route HTML-like targets to Page instead; Asset fetches whatever it is
// given.
func (e *Engine) Asset(ctx context.Context, rawTarget string) (*AssetResult, error) {
	if _, err := resolver.ValidateTarget(rawTarget); err != nil {
		return nil, invalidTarget(err)
	}

	if a, ok := e.assets.Get(rawTarget); ok {
		e.metrics.CacheLookup(metrics.TierAsset, true)
		return &AssetResult{Asset: a, Cache: CacheHit}, nil
	}
	e.metrics.CacheLookup(metrics.TierAsset, false)

	v, err := e.shared(ctx, "asset:"+rawTarget, func(ctx context.Context) (any, error) {
		return e.fetchAsset(ctx, rawTarget)
	})
	if err != nil {
		return nil, err
	}
	return &AssetResult{Asset: v.(cache.Asset), Cache: CacheMiss}, nil
}

func (e *Engine) fetchAsset(ctx context.Context, rawTarget string) (cache.Asset, error) {
	log := slog.With("url", rawTarget, "kind", kindAsset)
	start := time.Now()

	if e.assetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.assetTimeout)
		defer cancel()
	}

	var asset cache.Asset
	err := e.withSession(ctx, func(s browser.Session) error {
		resp, err := s.Navigate(ctx, rawTarget, browser.NavigateOptions{
			Wait:        browser.WaitDOMContentLoaded,
			Timeout:     e.assetTimeout,
			CaptureBody: true,
		})
		if err != nil {
			return err
		}
		if resp == nil {
			return models.NewProxyError(models.ErrCodeUpstreamNoResponse, "upstream returned no response", nil)
		}
		ct := resp.ContentType()
		if ct == "" {
			ct = cache.DefaultContentType
		}
		body := resp.Body
		if body == nil {
			body = []byte{}
		}
		asset = cache.Asset{Body: body, ContentType: ct}
		return nil
	})
	if err != nil {
		perr := categorize(err, "asset fetch failed")
		e.metrics.UpstreamFetch(kindAsset, outcome(perr), time.Since(start))
		log.Warn("asset fetch failed", "code", perr.Code, "error", err)
		return cache.Asset{}, perr
	}

	e.metrics.UpstreamFetch(kindAsset, metrics.OutcomeOK, time.Since(start))
	log.Debug("asset fetched", "bytes", len(asset.Body), "contentType", asset.ContentType)

	e.assets.Set(rawTarget, asset)
	return asset, nil
}
