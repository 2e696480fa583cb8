// Package browsertest provides a scripted in-memory browser for tests of
// code that drives browser.Agent and browser.Session.
package browsertest

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/shieldsup/browser"
)

// ErrNotScripted is returned when a test navigates to a URL with no Page.
var ErrNotScripted = errors.New("browsertest: url not scripted")

// Page scripts the outcome of navigating to one URL.
type Page struct {
	// HTML is returned by Session.Content after navigation.
	HTML string
	// Body and ContentType form the captured response for asset fetches.
	Body        []byte
	ContentType string
	Status      int

	// Requests are in-page subresource URLs. Each is run through the
	// session's interception predicates during Navigate so tests can see
	// what would have been blocked.
	Requests []string

	// Err makes Navigate fail.
	Err error
	// NoResponse makes Navigate succeed with a nil response.
	NoResponse bool
	// Delay holds Navigate until it elapses or the context ends.
	Delay time.Duration
}

// Agent is a fake browser.Agent. The zero value is not usable; use NewAgent.
type Agent struct {
	mu       sync.Mutex
	pages    map[string]Page
	sessions []*Session
	closed   bool

	// SessionErr makes NewSession fail when set.
	SessionErr error
}

// NewAgent returns an Agent with no scripted pages.
func NewAgent() *Agent {
	return &Agent{pages: make(map[string]Page)}
}

// Script sets the outcome for url.
func (a *Agent) Script(url string, p Page) *Agent {
	a.mu.Lock()
	a.pages[url] = p
	a.mu.Unlock()
	return a
}

// Launch adapts the agent to a browser.LaunchFunc.
func (a *Agent) Launch(context.Context) (browser.Agent, error) {
	return a, nil
}

func (a *Agent) NewSession(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SessionErr != nil {
		return nil, a.SessionErr
	}
	s := &Session{agent: a}
	a.sessions = append(a.sessions, s)
	return s, nil
}

func (a *Agent) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (a *Agent) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Sessions returns every session created so far.
func (a *Agent) Sessions() []*Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Session(nil), a.sessions...)
}

// SessionCount returns how many sessions were created.
func (a *Agent) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// OpenSessions returns how many sessions were created and not closed.
func (a *Agent) OpenSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.sessions {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Navigations returns the URLs navigated across all sessions, in order.
func (a *Agent) Navigations() []string {
	var out []string
	for _, s := range a.Sessions() {
		out = append(out, s.Navigated()...)
	}
	return out
}

func (a *Agent) page(url string) (Page, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pages[url]
	return p, ok
}

// Session is a fake browser.Session.
type Session struct {
	agent *Agent

	mu        sync.Mutex
	blocks    []browser.BlockFunc
	navigated []string
	opts      []browser.NavigateOptions
	blocked   []string
	current   *Page
	closed    bool
}

func (s *Session) InterceptRequests(fn browser.BlockFunc) {
	s.mu.Lock()
	s.blocks = append(s.blocks, fn)
	s.mu.Unlock()
}

// Interceptors returns how many predicates were installed.
func (s *Session) Interceptors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// Blocks runs url through the installed predicates.
func (s *Session) Blocks(url string) bool {
	s.mu.Lock()
	fns := s.blocks
	s.mu.Unlock()
	for _, fn := range fns {
		if fn(url) {
			return true
		}
	}
	return false
}

func (s *Session) Navigate(ctx context.Context, url string, opts browser.NavigateOptions) (*browser.Response, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s.mu.Lock()
	s.navigated = append(s.navigated, url)
	s.opts = append(s.opts, opts)
	s.mu.Unlock()

	if s.Blocks(url) {
		return nil, errors.New("net::ERR_BLOCKED_BY_CLIENT")
	}

	p, ok := s.agent.page(url)
	if !ok {
		return nil, ErrNotScripted
	}

	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}

	for _, r := range p.Requests {
		if s.Blocks(r) {
			s.mu.Lock()
			s.blocked = append(s.blocked, r)
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()

	if p.NoResponse {
		return nil, nil
	}
	status := p.Status
	if status == 0 {
		status = http.StatusOK
	}
	resp := &browser.Response{URL: url, StatusCode: status}
	if opts.CaptureBody {
		resp.Header = http.Header{}
		if p.ContentType != "" {
			resp.Header.Set("Content-Type", p.ContentType)
		}
		resp.Body = p.Body
	}
	return resp, nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", errors.New("browsertest: no document loaded")
	}
	return s.current.HTML, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Navigated returns the URLs this session navigated to.
func (s *Session) Navigated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

// Options returns the options passed to each Navigate call.
func (s *Session) Options() []browser.NavigateOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.NavigateOptions(nil), s.opts...)
}

// BlockedRequests returns the scripted subresources the predicates refused.
func (s *Session) BlockedRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.blocked...)
}
