package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerMiddleware() {
	if s == nil || s.router == nil {
		return
	}
	s.router.Use(gin.Logger(), gin.Recovery())
	if policy := corsPolicyFromEnv(); policy != nil {
		s.router.Use(policy.middleware())
	}
}

// corsPolicy is parsed once from AGENT_EVALS_CORS_ORIGINS: "*" allows every
// origin, otherwise a comma-separated allowlist. Unset means no CORS headers
// are emitted at all.
type corsPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

func corsPolicyFromEnv() *corsPolicy {
	raw := strings.TrimSpace(os.Getenv("AGENT_EVALS_CORS_ORIGINS"))
	if raw == "" {
		return nil
	}

	p := &corsPolicy{origins: make(map[string]struct{})}
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimSpace(part)
		switch origin {
		case "":
		case "*":
			p.allowAll = true
			p.origins = nil
			return p
		default:
			p.origins[origin] = struct{}{}
		}
	}
	if len(p.origins) == 0 {
		return nil
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

func (p *corsPolicy) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin == "" {
			c.Next()
			return
		}

		if p.allows(origin) {
			if p.allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// apiKeyAuthMiddleware rejects any request whose X-API-Key header does not
// match the configured key. Preflight requests pass through so CORS can
// answer them.
func apiKeyAuthMiddleware(expected string) gin.HandlerFunc {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if strings.TrimSpace(c.GetHeader("X-API-Key")) != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
