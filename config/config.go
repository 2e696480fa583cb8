package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Proxy     ProxyConfig
	Cache     CacheConfig
	AdBlock   AdBlockConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 3000
	Mode string // "debug", "release", "test"; default: "release"

	// PublicOrigin is the externally reachable base URL of this proxy.
	// Every proxy-relative link emitted in rewritten HTML and in the client
	// shim is built from it. Default: http://localhost:<Port>.
	PublicOrigin string
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UpstreamProxy routes all browser traffic through the given proxy URL.
	UpstreamProxy string

	// Stealth injects navigator.webdriver masking into every session.
	Stealth bool // default: false
}

// ProxyConfig controls the render and fetch paths.
type ProxyConfig struct {
	// PageTimeout bounds a full page render (navigation + network idle).
	PageTimeout time.Duration // default: 60s

	// AssetTimeout bounds a single asset fetch (navigation + DOMContentLoaded).
	AssetTimeout time.Duration // default: 45s

	// HardBlock lists URL substrings that are always aborted, independent of
	// the ad-block lists.
	HardBlock []string

	// Coalesce collapses concurrent renders of the same uncached URL into one
	// upstream fetch.
	Coalesce bool // default: false
}

// CacheConfig controls the two cache tiers.
type CacheConfig struct {
	PageMaxEntries  int           // default: 200
	PageTTL         time.Duration // default: 5m
	AssetMaxEntries int           // default: 500
	AssetTTL        time.Duration // default: 10m
}

// AdBlockConfig controls the list-driven request blocker.
type AdBlockConfig struct {
	Enabled bool // default: true

	// Lists is a set of sources: "builtin", a file path, or an http(s) URL.
	Lists []string // default: ["builtin"]
}

// RateLimitConfig controls per-client rate limiting of page renders.
// Subresource requests on /asset are never limited.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained /proxy rate per client IP.
	RequestsPerSecond float64 // default: 20

	// Burst is the maximum /proxy burst size per client IP.
	Burst int // default: 40
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool // default: true

	// Tokens guard GET /metrics. Empty means open access.
	Tokens []string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultHardBlock is the set of tracker hosts aborted at request level even
// when the ad-block lists are disabled.
var DefaultHardBlock = []string{
	"googlesyndication.com",
	"doubleclick.net",
	"google-analytics.com",
	"g.doubleclick.net",
	"facebook.net",
	"taboola.com",
	"outbrain.com",
	"criteo.net",
	"criteo.com",
	"scorecardresearch.com",
	"quantserve.com",
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	port := envIntOr("PORT", 3000)
	return &Config{
		Server: ServerConfig{
			Host:         envOr("SHIELDS_HOST", "0.0.0.0"),
			Port:         port,
			Mode:         envOr("SHIELDS_MODE", "release"),
			PublicOrigin: normalizeOrigin(envOr("PUBLIC_ORIGIN", fmt.Sprintf("http://localhost:%d", port))),
		},
		Browser: BrowserConfig{
			Headless:      envBoolOr("SHIELDS_HEADLESS", true),
			NoSandbox:     envBoolOr("SHIELDS_NO_SANDBOX", true),
			BrowserBin:    os.Getenv("SHIELDS_BROWSER_BIN"),
			UpstreamProxy: os.Getenv("SHIELDS_UPSTREAM_PROXY"),
			Stealth:       envBoolOr("SHIELDS_STEALTH", false),
		},
		Proxy: ProxyConfig{
			PageTimeout:  envDurationOr("SHIELDS_PAGE_TIMEOUT", 60*time.Second),
			AssetTimeout: envDurationOr("SHIELDS_ASSET_TIMEOUT", 45*time.Second),
			HardBlock:    envSliceOr("SHIELDS_HARD_BLOCK", DefaultHardBlock),
			Coalesce:     envBoolOr("SHIELDS_COALESCE", false),
		},
		Cache: CacheConfig{
			PageMaxEntries:  envIntOr("SHIELDS_PAGE_CACHE_ENTRIES", 200),
			PageTTL:         envDurationOr("SHIELDS_PAGE_CACHE_TTL", 5*time.Minute),
			AssetMaxEntries: envIntOr("SHIELDS_ASSET_CACHE_ENTRIES", 500),
			AssetTTL:        envDurationOr("SHIELDS_ASSET_CACHE_TTL", 10*time.Minute),
		},
		AdBlock: AdBlockConfig{
			Enabled: envBoolOr("SHIELDS_ADBLOCK_ENABLED", true),
			Lists:   envSliceOr("SHIELDS_ADBLOCK_LISTS", []string{"builtin"}),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SHIELDS_RATE_RPS", 20),
			Burst:             envIntOr("SHIELDS_RATE_BURST", 40),
		},
		Metrics: MetricsConfig{
			Enabled: envBoolOr("SHIELDS_METRICS_ENABLED", true),
			Tokens:  envSliceOr("SHIELDS_METRICS_TOKENS", nil),
		},
		Log: LogConfig{
			Level:  envOr("SHIELDS_LOG_LEVEL", "info"),
			Format: envOr("SHIELDS_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects configurations the proxy cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.PublicOrigin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: PUBLIC_ORIGIN must be an absolute http(s) URL, got %q", c.Server.PublicOrigin)
	}
	if c.Cache.PageMaxEntries <= 0 || c.Cache.AssetMaxEntries <= 0 {
		return fmt.Errorf("config: cache capacities must be positive")
	}
	if c.Proxy.PageTimeout <= 0 || c.Proxy.AssetTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	return nil
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
