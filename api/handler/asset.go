package handler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shieldsup/models"
	"github.com/use-agent/shieldsup/proxy"
	"github.com/use-agent/shieldsup/resolver"
)

// Asset returns a handler for GET /asset?url=<absolute-url>.
//
// Flow:
//  1. Validate the target (400 on failure).
//  2. HTML-like targets are redirected to /proxy so they get rendered.
//  3. Engine.Asset: cache hit or browser fetch of the raw bytes.
//  4. Respond with the upstream content type and public caching. CORS is
//     applied by the route's middleware.
func Asset(eng *proxy.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("url")
		target, err := resolver.ValidateTarget(raw)
		if err != nil {
			c.String(http.StatusBadRequest, msgAssetFailed)
			return
		}

		if resolver.Classify(target) == resolver.HTMLLike {
			c.Redirect(http.StatusFound, resolver.PagePath+"?url="+url.QueryEscape(raw))
			return
		}

		res, err := eng.Asset(c.Request.Context(), raw)
		if err != nil {
			c.String(mapErrorToStatus(err), messageFor(err))
			return
		}

		c.Header(headerProxyCache, string(res.Cache))
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(eng.AssetTTL().Seconds())))
		c.Data(http.StatusOK, res.ContentType, res.Body)
	}
}

// mapErrorToStatus translates asset error codes to HTTP status codes.
func mapErrorToStatus(err error) int {
	switch models.CodeOf(err) {
	case models.ErrCodeUpstreamNoResponse:
		return http.StatusBadGateway // 502
	default:
		return http.StatusBadRequest // 400
	}
}

func messageFor(err error) string {
	if models.CodeOf(err) == models.ErrCodeUpstreamNoResponse {
		return msgAssetNoResponse
	}
	return msgAssetFailed
}
