package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// AssetCORS opens proxied subresources to every origin, without credentials.
// Fonts and fetch() targets loaded from /asset are only readable with it.
func AssetCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:    []string{"Accept", "Origin", "Range", "Content-Type"},
		ExposeHeaders:   []string{"Content-Length", "Content-Type", "X-Proxy-Cache"},
		MaxAge:          12 * time.Hour,
	})
}
