package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shieldsup/proxy"
	"github.com/use-agent/shieldsup/security"
)

// Client-facing failure bodies.
const (
	msgPageFailed      = "Bad request or upstream failure."
	msgAssetFailed     = "Asset fetch failed."
	msgAssetNoResponse = "Upstream asset error"
)

const headerProxyCache = "X-Proxy-Cache"

// Proxy returns a handler for GET /proxy?url=<absolute-url>.
//
// Serves the rendered, rewritten document with the security header set.
// Every failure, including an invalid url, is a 400 with a fixed body.
func Proxy(eng *proxy.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := eng.Page(c.Request.Context(), c.Query("url"))
		if err != nil {
			c.String(http.StatusBadRequest, msgPageFailed)
			return
		}

		security.Apply(c.Writer.Header(), eng.Origin())
		c.Header(headerProxyCache, string(res.Cache))
		c.Data(http.StatusOK, security.HTMLContentType, []byte(res.HTML))
	}
}
