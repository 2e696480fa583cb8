package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/shieldsup/adblock"
	"github.com/use-agent/shieldsup/browser"
	"github.com/use-agent/shieldsup/browser/browsertest"
	"github.com/use-agent/shieldsup/cache"
	"github.com/use-agent/shieldsup/metrics"
	"github.com/use-agent/shieldsup/models"
)

const testOrigin = "http://localhost:3000"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingSource records how often the engine asked for the agent.
type countingSource struct {
	agent browser.Agent
	err   error
	gets  atomic.Int32
}

func (s *countingSource) Get(context.Context) (browser.Agent, error) {
	s.gets.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.agent, nil
}

type recordingFilter struct {
	attached atomic.Int32
}

func (f *recordingFilter) Attach(s browser.Session) {
	f.attached.Add(1)
	s.InterceptRequests(func(string) bool { return false })
}

type fixture struct {
	engine  *Engine
	agent   *browsertest.Agent
	source  *countingSource
	clock   *testClock
	metrics *metrics.Metrics
	filter  *recordingFilter
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	pages, err := cache.New[string](200, 5*time.Minute, cache.WithClock(clock.Now))
	require.NoError(t, err)
	assets, err := cache.New[cache.Asset](500, 10*time.Minute, cache.WithClock(clock.Now))
	require.NoError(t, err)

	agent := browsertest.NewAgent()
	source := &countingSource{agent: agent}
	m := metrics.New()
	filter := &recordingFilter{}

	opts := Options{
		Origin:       testOrigin,
		Agents:       source,
		Blocker:      filter,
		HardBlock:    adblock.HardBlockList{"doubleclick.net", "taboola.com"},
		Pages:        pages,
		Assets:       assets,
		PageTimeout:  time.Second,
		AssetTimeout: time.Second,
		Metrics:      m,
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &fixture{
		engine:  New(opts),
		agent:   agent,
		source:  source,
		clock:   clock,
		metrics: m,
		filter:  filter,
	}
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return models.CodeOf(err)
}

func TestPage_MissThenHit(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://example.com/", browsertest.Page{
		HTML: `<html><head><title>t</title></head><body><img src="/logo.png"></body></html>`,
	})

	first, err := f.engine.Page(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.Cache)
	assert.Contains(t, first.HTML, `src="http://localhost:3000/asset?url=https%3A%2F%2Fexample.com%2Flogo.png"`)
	assert.Contains(t, first.HTML, `var BASE = "https://example.com/";`)

	second, err := f.engine.Page(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.Cache)
	assert.Equal(t, first.HTML, second.HTML)

	assert.Equal(t, 1, f.agent.SessionCount())
	assert.Equal(t, 0, f.agent.OpenSessions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheLookups.WithLabelValues(metrics.TierPage, metrics.ResultHit)))
}

func TestPage_UsesNetworkIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://example.com/", browsertest.Page{HTML: "<html></html>"})

	_, err := f.engine.Page(context.Background(), "https://example.com/")
	require.NoError(t, err)

	opts := f.agent.Sessions()[0].Options()
	require.Len(t, opts, 1)
	assert.Equal(t, browser.WaitNetworkIdle, opts[0].Wait)
	assert.Equal(t, time.Second, opts[0].Timeout)
	assert.False(t, opts[0].CaptureBody)
}

func TestPage_ExpiresAfterTTL(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://example.com/", browsertest.Page{HTML: "<html></html>"})

	_, err := f.engine.Page(context.Background(), "https://example.com/")
	require.NoError(t, err)

	f.clock.Advance(5*time.Minute + time.Second)

	res, err := f.engine.Page(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, res.Cache)
	assert.Equal(t, 2, f.agent.SessionCount())
}

func TestPage_InvalidTargetNeverTouchesBrowser(t *testing.T) {
	f := newFixture(t, nil)

	for _, raw := range []string{"", "example.com", "ftp://example.com/", "javascript:alert(1)", "https://"} {
		_, err := f.engine.Page(context.Background(), raw)
		assert.Equal(t, models.ErrCodeInvalidInput, codeOf(t, err), raw)
	}
	assert.Equal(t, int32(0), f.source.gets.Load())
	assert.Equal(t, 0, f.agent.SessionCount())
}

func TestPage_UpstreamFailureIsNotCached(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://down.example/", browsertest.Page{Err: errors.New("net::ERR_NAME_NOT_RESOLVED")})

	_, err := f.engine.Page(context.Background(), "https://down.example/")
	assert.Equal(t, models.ErrCodeUpstreamFailure, codeOf(t, err))

	_, err = f.engine.Page(context.Background(), "https://down.example/")
	require.Error(t, err)

	assert.Equal(t, 2, f.agent.SessionCount())
	assert.Equal(t, 0, f.agent.OpenSessions())
	assert.Equal(t, 0, f.engine.pages.Len())
}

func TestPage_Timeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PageTimeout = 20 * time.Millisecond })
	f.agent.Script("https://slow.example/", browsertest.Page{HTML: "<html></html>", Delay: time.Second})

	_, err := f.engine.Page(context.Background(), "https://slow.example/")
	assert.Equal(t, models.ErrCodeUpstreamTimeout, codeOf(t, err))
	assert.Equal(t, 0, f.agent.OpenSessions())
}

func TestPage_BrowserUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.source.err = errors.New("chromium missing")

	_, err := f.engine.Page(context.Background(), "https://example.com/")
	assert.Equal(t, models.ErrCodeBrowserUnavailable, codeOf(t, err))
}

func TestPage_InstallsBlockersBeforeNavigation(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://news.example/", browsertest.Page{
		HTML: "<html></html>",
		Requests: []string{
			"https://news.example/app.js",
			"https://securepubads.g.doubleclick.net/tag/js/gpt.js",
			"https://cdn.taboola.com/libtrc/loader.js",
		},
	})

	_, err := f.engine.Page(context.Background(), "https://news.example/")
	require.NoError(t, err)

	s := f.agent.Sessions()[0]
	assert.Equal(t, 2, s.Interceptors())
	assert.Equal(t, int32(1), f.filter.attached.Load())
	assert.ElementsMatch(t, []string{
		"https://securepubads.g.doubleclick.net/tag/js/gpt.js",
		"https://cdn.taboola.com/libtrc/loader.js",
	}, s.BlockedRequests())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.HardBlocked))
}

func TestPage_WithoutBlockerStillHardBlocks(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Blocker = nil })
	f.agent.Script("https://news.example/", browsertest.Page{
		HTML:     "<html></html>",
		Requests: []string{"https://stats.doubleclick.net/p.gif"},
	})

	_, err := f.engine.Page(context.Background(), "https://news.example/")
	require.NoError(t, err)

	s := f.agent.Sessions()[0]
	assert.Equal(t, 1, s.Interceptors())
	assert.Len(t, s.BlockedRequests(), 1)
}

func TestPage_Coalesced(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Coalesce = true })
	f.agent.Script("https://example.com/", browsertest.Page{HTML: "<html></html>", Delay: 50 * time.Millisecond})

	var wg sync.WaitGroup
	results := make([]*PageResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.engine.Page(context.Background(), "https://example.com/")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.agent.SessionCount())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].HTML, r.HTML)
	}
}

func TestAsset_MissThenHit(t *testing.T) {
	f := newFixture(t, nil)
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	f.agent.Script("https://example.com/logo.png", browsertest.Page{Body: png, ContentType: "image/png"})

	first, err := f.engine.Asset(context.Background(), "https://example.com/logo.png")
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.Cache)
	assert.Equal(t, png, first.Body)
	assert.Equal(t, "image/png", first.ContentType)

	second, err := f.engine.Asset(context.Background(), "https://example.com/logo.png")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.Cache)
	assert.Equal(t, png, second.Body)
	assert.Equal(t, "image/png", second.ContentType)

	assert.Equal(t, 1, f.agent.SessionCount())

	opts := f.agent.Sessions()[0].Options()
	require.Len(t, opts, 1)
	assert.Equal(t, browser.WaitDOMContentLoaded, opts[0].Wait)
	assert.True(t, opts[0].CaptureBody)
}

func TestAsset_DefaultContentType(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://example.com/blob.bin", browsertest.Page{Body: []byte("x")})

	res, err := f.engine.Asset(context.Background(), "https://example.com/blob.bin")
	require.NoError(t, err)
	assert.Equal(t, cache.DefaultContentType, res.ContentType)
}

func TestAsset_NoResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://example.com/gone.png", browsertest.Page{NoResponse: true})

	_, err := f.engine.Asset(context.Background(), "https://example.com/gone.png")
	assert.Equal(t, models.ErrCodeUpstreamNoResponse, codeOf(t, err))
	assert.Equal(t, 0, f.engine.assets.Len())
	assert.Equal(t, 0, f.agent.OpenSessions())
}

func TestAsset_HardBlockedTargetFails(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://ad.doubleclick.net/banner.gif", browsertest.Page{Body: []byte("gif")})

	_, err := f.engine.Asset(context.Background(), "https://ad.doubleclick.net/banner.gif")
	assert.Equal(t, models.ErrCodeUpstreamFailure, codeOf(t, err))
}

func TestAsset_ExpiresAfterTTL(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://example.com/a.css", browsertest.Page{Body: []byte("body{}"), ContentType: "text/css"})

	_, err := f.engine.Asset(context.Background(), "https://example.com/a.css")
	require.NoError(t, err)

	f.clock.Advance(9 * time.Minute)
	res, err := f.engine.Asset(context.Background(), "https://example.com/a.css")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, res.Cache)

	f.clock.Advance(time.Minute)
	res, err = f.engine.Asset(context.Background(), "https://example.com/a.css")
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, res.Cache)
	assert.Equal(t, 2, f.agent.SessionCount())
}

func TestAsset_Timeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AssetTimeout = 20 * time.Millisecond })
	f.agent.Script("https://slow.example/font.woff2", browsertest.Page{
		Body:        []byte("wOF2"),
		ContentType: "font/woff2",
		Delay:       time.Second,
	})

	_, err := f.engine.Asset(context.Background(), "https://slow.example/font.woff2")
	assert.Equal(t, models.ErrCodeUpstreamTimeout, codeOf(t, err))
	assert.Equal(t, 0, f.engine.assets.Len())
	assert.Equal(t, 0, f.agent.OpenSessions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UpstreamFetches.WithLabelValues(kindAsset, metrics.OutcomeTimeout)))
}

func TestAsset_NonRenderableTypesServed(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.Script("https://example.com/manual.pdf", browsertest.Page{Body: []byte("%PDF-1.7"), ContentType: "application/pdf"})
	f.agent.Script("https://example.com/inter.woff2", browsertest.Page{Body: []byte("wOF2"), ContentType: "font/woff2"})

	pdf, err := f.engine.Asset(context.Background(), "https://example.com/manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), pdf.Body)

	font, err := f.engine.Asset(context.Background(), "https://example.com/inter.woff2")
	require.NoError(t, err)
	assert.Equal(t, "font/woff2", font.ContentType)
}
