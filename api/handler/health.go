package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shieldsup/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// BrowserState reports the shared agent's lifecycle.
type BrowserState interface {
	Launched() bool
	ActiveSessions() int
}

// CacheSizer reports cache occupancy.
type CacheSizer interface {
	CacheSizes() (pages, assets int)
}

// Health returns a handler for GET /healthz.
//
// The browser starts lazily, so "starting" is a normal state until the
// first proxied request.
func Health(bs BrowserState, cs CacheSizer, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		launched := bs.Launched()
		status := "healthy"
		if !launched {
			status = "starting"
		}
		pages, assets := cs.CacheSizes()

		c.JSON(http.StatusOK, models.HealthResponse{
			Status: status,
			Uptime: time.Since(startTime).Round(time.Second).String(),
			Browser: models.BrowserStats{
				Launched:       launched,
				ActiveSessions: bs.ActiveSessions(),
			},
			Cache: models.CacheStats{
				Pages:  pages,
				Assets: assets,
			},
			Version: Version,
		})
	}
}

// Root returns a handler for GET / that confirms the server is up.
func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "Shields-Up proxy is running. Use /proxy?url=https://...")
	}
}
