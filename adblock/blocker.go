// Package adblock decides which in-page requests a rendering session must
// refuse. It holds two independent layers: a general blocker fed from
// domain lists, and a fixed substring hard-block list that is applied even
// when the general blocker is unavailable.
package adblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"

	"github.com/use-agent/shieldsup/browser"
)

// urlParser reads request URLs the way the browser issued them, so a path
// Chromium accepts (stray "%", backslashes) still yields its host.
var urlParser = whatwgUrl.NewParser()

// BuiltinSource names the list compiled into the binary.
const BuiltinSource = "builtin"

// Blocker matches request URLs against a set of blocked domains. It is safe
// for concurrent use; lists may be loaded while sessions are matching.
type Blocker struct {
	mu      sync.RWMutex
	domains map[string]struct{}
	sources []string

	client  *listClient
	blocked atomic.Int64
}

// NewBlocker returns an empty Blocker. Call Load or LoadAll to populate it.
func NewBlocker() *Blocker {
	return &Blocker{
		domains: make(map[string]struct{}),
		client:  newListClient(),
	}
}

// Load builds a Blocker from sources. The Blocker is returned even when some
// sources fail, carrying whatever did load.
func Load(ctx context.Context, sources ...string) (*Blocker, error) {
	b := NewBlocker()
	return b, b.LoadAll(ctx, sources)
}

// Load adds the domains from one source: "builtin", an http(s) URL of a
// filter or hosts list, or a local file path.
func (b *Blocker) Load(ctx context.Context, source string) error {
	var domains []string
	switch {
	case source == BuiltinSource:
		domains = builtinDomains
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		body, err := b.client.fetch(ctx, source)
		if err != nil {
			return fmt.Errorf("adblock: load %s: %w", source, err)
		}
		domains = ParseList(body)
	default:
		body, err := readListFile(source)
		if err != nil {
			return fmt.Errorf("adblock: load %s: %w", source, err)
		}
		domains = ParseList(body)
	}

	b.Add(domains...)

	b.mu.Lock()
	b.sources = append(b.sources, source)
	b.mu.Unlock()

	slog.Info("adblock: list loaded", "source", source, "domains", len(domains))
	return nil
}

// LoadAll loads every source, keeping whatever succeeded. The returned error
// joins the individual failures.
func (b *Blocker) LoadAll(ctx context.Context, sources []string) error {
	var errs []error
	for _, src := range sources {
		if err := b.Load(ctx, src); err != nil {
			slog.Warn("adblock: list unavailable", "source", src, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Add inserts domains directly.
func (b *Blocker) Add(domains ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			b.domains[d] = struct{}{}
		}
	}
}

// Len returns the number of distinct blocked domains.
func (b *Blocker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.domains)
}

// Sources returns the sources that loaded successfully.
func (b *Blocker) Sources() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.sources...)
}

// Match reports whether the host of rawURL, or any of its parent domains,
// is blocked.
func (b *Blocker) Match(rawURL string) bool {
	u, err := urlParser.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.domains) == 0 {
		return false
	}
	// Walk parent domains: "pagead2.googlesyndication.com" → "googlesyndication.com".
	for {
		if _, ok := b.domains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// Attach installs the blocker on a session so every request the page issues
// is checked before it leaves the browser.
func (b *Blocker) Attach(s browser.Session) {
	s.InterceptRequests(func(requestURL string) bool {
		if b.Match(requestURL) {
			b.blocked.Add(1)
			return true
		}
		return false
	})
}

// Blocked returns how many requests attached sessions have refused.
func (b *Blocker) Blocked() int64 {
	return b.blocked.Load()
}
