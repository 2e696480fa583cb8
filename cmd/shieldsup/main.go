package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/shieldsup/adblock"
	"github.com/use-agent/shieldsup/api"
	"github.com/use-agent/shieldsup/browser"
	"github.com/use-agent/shieldsup/cache"
	"github.com/use-agent/shieldsup/config"
	"github.com/use-agent/shieldsup/metrics"
	"github.com/use-agent/shieldsup/proxy"
)

const janitorInterval = time.Minute

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("shieldsup starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"origin", cfg.Server.PublicOrigin,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.New()

	// ── 3. Browser launcher (Chromium starts on first use) ──────────
	launcher := browser.NewLauncher(browser.LaunchRod(cfg.Browser))

	// ── 4. Ad-block lists ───────────────────────────────────────────
	opts := proxy.Options{
		Origin:       cfg.Server.PublicOrigin,
		Agents:       launcher,
		HardBlock:    adblock.HardBlockList(cfg.Proxy.HardBlock),
		PageTimeout:  cfg.Proxy.PageTimeout,
		AssetTimeout: cfg.Proxy.AssetTimeout,
		Coalesce:     cfg.Proxy.Coalesce,
		Metrics:      m,
	}
	if cfg.AdBlock.Enabled {
		blocker, err := adblock.Load(ctx, cfg.AdBlock.Lists...)
		if err != nil {
			// Partial lists still block; keep serving with what loaded.
			slog.Warn("some ad-block lists failed to load", "error", err)
		}
		slog.Info("ad-block ready", "sources", blocker.Sources(), "domains", blocker.Len())
		m.ObserveAdBlocks(blocker.Blocked)
		opts.Blocker = blocker
	}

	// ── 5. Caches ───────────────────────────────────────────────────
	pages, err := cache.New[string](cfg.Cache.PageMaxEntries, cfg.Cache.PageTTL, cache.WithName("pages"))
	if err != nil {
		slog.Error("failed to create page cache", "error", err)
		os.Exit(1)
	}
	assets, err := cache.New[cache.Asset](cfg.Cache.AssetMaxEntries, cfg.Cache.AssetTTL, cache.WithName("assets"))
	if err != nil {
		slog.Error("failed to create asset cache", "error", err)
		os.Exit(1)
	}
	go pages.Janitor(ctx, janitorInterval)
	go assets.Janitor(ctx, janitorInterval)
	opts.Pages, opts.Assets = pages, assets

	eng := proxy.New(opts)

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(cfg, eng, launcher, m, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())
	stop()

	// Give in-flight renders 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	if err := launcher.Close(); err != nil {
		slog.Error("browser shutdown failed", "error", err)
	}
	slog.Info("shieldsup stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
