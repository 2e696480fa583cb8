package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/shieldsup/config"
)

// sessionHeaders are sent with every request a session issues.
var sessionHeaders = map[string]string{
	"Accept-Language": "en-US,en;q=0.9",
}

// navigationJS reads the main document status without CDP network events,
// which would conflict with the Fetch domain used for request hijacking.
const navigationJS = `() => {
	let status = 0;
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) status = entries[0].responseStatus || 0;
	} catch (e) {}
	return { status: status, url: window.location.href };
}`

// LaunchRod returns a LaunchFunc that starts a local Chromium with rod.
func LaunchRod(cfg config.BrowserConfig) LaunchFunc {
	return func(ctx context.Context) (Agent, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		transport, err := NewChromeTransport(cfg.UpstreamProxy)
		if err != nil {
			return nil, err
		}

		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.UpstreamProxy != "" {
			l = l.Proxy(cfg.UpstreamProxy)
		}

		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("disable-ipc-flooding-protection"))
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-prompt-on-repost"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))

		controlURL, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		slog.Info("browser launched", "controlURL", controlURL)

		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("connect to browser: %w", err)
		}

		return &rodAgent{
			browser:  b,
			launcher: l,
			stealth:  cfg.Stealth,
			client: &http.Client{
				Transport: transport,
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					if len(via) >= 10 {
						return fmt.Errorf("too many redirects")
					}
					return nil
				},
			},
		}, nil
	}
}

// rodAgent owns the browser process.
type rodAgent struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	stealth  bool
	client   *http.Client
}

// NewSession opens a tab in a fresh incognito context so cookies, storage
// and service workers never leak between requests.
func (a *rodAgent) NewSession(ctx context.Context) (Session, error) {
	incog, err := a.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	incog = incog.Context(context.Background())

	page, err := incog.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incog.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if a.stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(sessionHeaders),
	}.Call(page)

	return &rodSession{page: page, incognito: incog, client: a.client}, nil
}

// Close shuts the browser and waits for the process to exit.
func (a *rodAgent) Close() error {
	err := a.browser.Close()
	a.launcher.Cleanup()
	return err
}

// rodSession is a single incognito tab.
type rodSession struct {
	page      *rod.Page
	incognito *rod.Browser
	client    *http.Client

	mu      sync.Mutex
	blocks  []BlockFunc
	router  *rod.HijackRouter
	capture *capture
}

// capture records the first document response of one navigation.
type capture struct {
	mu      sync.Mutex
	claimed bool
	resp    *Response
	err     error
}

func (c *capture) claim() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed {
		return false
	}
	c.claimed = true
	return true
}

func (c *capture) set(resp *Response, err error) {
	c.mu.Lock()
	c.resp, c.err = resp, err
	c.mu.Unlock()
}

func (c *capture) result() (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resp, c.err
}

func (s *rodSession) InterceptRequests(fn BlockFunc) {
	s.mu.Lock()
	s.blocks = append(s.blocks, fn)
	s.mu.Unlock()
}

func (s *rodSession) blocked(requestURL string) bool {
	s.mu.Lock()
	fns := s.blocks
	s.mu.Unlock()
	for _, fn := range fns {
		if fn(requestURL) {
			return true
		}
	}
	return false
}

// ensureRouter mounts the hijack router once per session.
func (s *rodSession) ensureRouter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.router != nil {
		return
	}
	router := s.page.HijackRequests()
	// Pattern "*" + empty resourceType = intercept ALL requests.
	_ = router.Add("*", "", s.handle)
	// router.Run() blocks until router.Stop().
	go router.Run()
	s.router = router
}

func (s *rodSession) handle(h *rod.Hijack) {
	requestURL := h.Request.URL().String()
	if s.blocked(requestURL) {
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}

	s.mu.Lock()
	c := s.capture
	s.mu.Unlock()

	if c != nil && h.Request.Type() == proto.NetworkResourceTypeDocument && c.claim() {
		if err := h.LoadResponse(s.client, true); err != nil {
			c.set(nil, err)
			h.Response.Fail(proto.NetworkErrorReasonFailed)
			return
		}
		c.set(payloadResponse(requestURL, h.Response.Payload()), nil)
		return
	}

	h.ContinueRequest(&proto.FetchContinueRequest{})
}

func (s *rodSession) Navigate(ctx context.Context, target string, opts NavigateOptions) (*Response, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var c *capture
	if opts.CaptureBody {
		c = &capture{}
	}
	s.mu.Lock()
	s.capture = c
	s.mu.Unlock()
	s.ensureRouter()

	p := s.page.Context(ctx)

	// Must be registered before Navigate so the lifecycle event is not missed.
	wait := p.WaitNavigation(lifecycleEvent(opts.Wait))

	if err := p.Navigate(target); err != nil {
		return settle(c, err)
	}
	wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c != nil {
		return c.result()
	}
	return navigationResponse(p), nil
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Close() error {
	s.mu.Lock()
	router := s.router
	s.router = nil
	s.mu.Unlock()

	if router != nil {
		_ = router.Stop()
	}
	err := s.page.Close()
	if cerr := s.incognito.Close(); err == nil {
		err = cerr
	}
	return err
}

// settle decides the outcome of a navigation that reported navErr. A
// document already captured by the hijack handler wins: Chromium aborts the
// navigation with net::ERR_ABORTED when it hands a font, PDF or archive to
// its download manager, after the body has been loaded.
func settle(c *capture, navErr error) (*Response, error) {
	if c == nil {
		return nil, navErr
	}
	resp, loadErr := c.result()
	if loadErr != nil {
		return nil, loadErr
	}
	if resp != nil {
		slog.Debug("navigation aborted after document capture", "url", resp.URL, "error", navErr)
		return resp, nil
	}
	return nil, navErr
}

func lifecycleEvent(w WaitPolicy) proto.PageLifecycleEventName {
	if w == WaitDOMContentLoaded {
		return proto.PageLifecycleEventNameDOMContentLoaded
	}
	return proto.PageLifecycleEventNameNetworkAlmostIdle
}

// navigationResponse reports the main document status via the Navigation
// Timing API (best-effort). It returns nil when the page exposes nothing.
func navigationResponse(p *rod.Page) *Response {
	res, err := p.Timeout(5 * time.Second).Eval(navigationJS)
	if err != nil {
		return nil
	}
	status := res.Value.Get("status").Int()
	if status == 0 {
		return nil
	}
	return &Response{
		URL:        res.Value.Get("url").Str(),
		StatusCode: status,
	}
}

func payloadResponse(requestURL string, payload *proto.FetchFulfillRequest) *Response {
	header := make(http.Header, len(payload.ResponseHeaders))
	for _, h := range payload.ResponseHeaders {
		header.Add(h.Name, h.Value)
	}
	return &Response{
		URL:        requestURL,
		StatusCode: payload.ResponseCode,
		Header:     header,
		Body:       payload.Body,
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
