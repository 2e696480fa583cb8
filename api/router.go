package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shieldsup/api/handler"
	"github.com/use-agent/shieldsup/api/middleware"
	"github.com/use-agent/shieldsup/config"
	"github.com/use-agent/shieldsup/metrics"
	"github.com/use-agent/shieldsup/proxy"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics
//	/proxy:  RateLimit
//	/asset:  CORS
//	/metrics: Auth (if tokens are configured)
//
// Only page renders are rate limited. A single rendered page fans out into
// dozens of /asset requests from the same browser, most of them cache hits.
func NewRouter(cfg *config.Config, eng *proxy.Engine, bs handler.BrowserState, m *metrics.Metrics, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(metrics.Middleware(m))

	r.GET("/", handler.Root())
	r.GET("/healthz", handler.Health(bs, eng, startTime))
	if m != nil && cfg.Metrics.Enabled {
		r.GET("/metrics", middleware.Auth(cfg.Metrics.Tokens), gin.WrapH(m.Handler()))
	}

	// Page rendering
	r.GET("/proxy", middleware.RateLimit(cfg.RateLimit), handler.Proxy(eng))

	// Subresources
	assets := r.Group("/asset", middleware.AssetCORS())
	assets.GET("", handler.Asset(eng))
	assets.OPTIONS("", func(c *gin.Context) {})

	return r
}
