package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls cross-origin access for browser-hosted editors.
// Origins may be exact ("https://pad.example.com"), "*" or a subdomain
// pattern ("https://*.example.com").
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"`
	AllowedMethods   []string      `yaml:"allowedMethods"`
	AllowedHeaders   []string      `yaml:"allowedHeaders"`
	ExposedHeaders   []string      `yaml:"exposedHeaders"`
	AllowCredentials bool          `yaml:"allowCredentials"`
	MaxAge           time.Duration `yaml:"maxAge"`
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	defaultCORSHeaders = []string{"Content-Type", traceIDHeader, requestIDHeader}
)

// corsHeaders are the response headers shared by every allowed request.
func corsHeaders(cfg CORSConfig) http.Header {
	methods, headers := cfg.AllowedMethods, cfg.AllowedHeaders
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	exposed := append([]string{traceIDHeader, requestIDHeader}, cfg.ExposedHeaders...)

	h := http.Header{}
	h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	h.Set("Access-Control-Expose-Headers", strings.Join(exposed, ", "))
	if cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if cfg.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
	}
	return h
}

// CORSMiddleware applies CORS headers and answers preflight requests.
// Disallowed preflights get 403; disallowed simple requests pass through
// without CORS headers and the browser blocks the response.
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	shared := corsHeaders(cfg)
	// Credentialed responses may not use the "*" origin.
	anyOrigin := !cfg.AllowCredentials && len(cfg.AllowedOrigins) == 1 && strings.TrimSpace(cfg.AllowedOrigins[0]) == "*"

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		preflight := c.Request.Method == http.MethodOptions
		switch {
		case origin == "":
			c.Next()
			return
		case !OriginAllowed(origin, cfg.AllowedOrigins):
			if preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		for k, v := range shared {
			h[k] = v
		}
		if anyOrigin {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		if preflight {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginAllowed matches origin against exact entries, "*" and "scheme://*.domain" patterns.
func OriginAllowed(origin string, allowed []string) bool {
	for _, pattern := range allowed {
		pattern = strings.TrimSpace(pattern)
		switch {
		case pattern == "":
		case pattern == "*", strings.EqualFold(pattern, origin):
			return true
		case strings.Contains(pattern, "://*."):
			scheme, suffix, _ := strings.Cut(pattern, "://*")
			lower := strings.ToLower(origin)
			if strings.HasPrefix(lower, strings.ToLower(scheme)+"://") && strings.HasSuffix(lower, strings.ToLower(suffix)) &&
				len(lower) > len(scheme)+3+len(suffix) {
				return true
			}
		}
	}
	return false
}
