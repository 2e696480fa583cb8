package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shieldsup/models"
)

// Auth guards the operator endpoint /metrics with static bearer tokens, the
// scheme Prometheus sends from a scrape job's authorization block. Proxied
// routes never sit behind it.
//
// If tokens is empty, the middleware is a no-op (open access).
func Auth(tokens []string) gin.HandlerFunc {
	var accepted [][]byte
	for _, tok := range tokens {
		if tok != "" {
			accepted = append(accepted, []byte(tok))
		}
	}
	if len(accepted) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || !tokenAccepted(accepted, presented) {
			c.Header("WWW-Authenticate", `Bearer realm="metrics"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeUnauthorized,
					Message: "a valid bearer token is required for metrics",
				},
			})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the credentials of an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func bearerToken(header string) ([]byte, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, false
	}
	token = strings.TrimSpace(token)
	return []byte(token), token != ""
}

// tokenAccepted compares in constant time against every configured token.
func tokenAccepted(accepted [][]byte, presented []byte) bool {
	match := 0
	for _, tok := range accepted {
		match |= subtle.ConstantTimeCompare(tok, presented)
	}
	return match == 1
}
