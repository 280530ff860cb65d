// Package server exposes playground sessions over HTTP and websockets.
package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"codepad/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps are the pieces NewRouter wires together.
type RouterDeps struct {
	Sessions *SessionManager
	Hub      *Hub
	// Limiter may be nil.
	Limiter  *RateLimiter
	Gatherer prometheus.Gatherer
	CORS     middleware.CORSConfig

	// Checks are probed by /readyz, keyed by backend name.
	Checks map[string]func(context.Context) error
}

const readyTimeout = 2 * time.Second

func readyHandler(checks map[string]func(context.Context) error) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		c.JSON(status, result)
	}
}

// NewRouter builds the gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.CORSMiddleware(deps.CORS))
	router.Use(middleware.AccessLogMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/readyz", readyHandler(deps.Checks))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	ctrl := NewSessionController(deps.Sessions, deps.Hub)
	api := router.Group("/api/v1/sessions")
	api.POST("", ctrl.Create)
	api.GET("/:id", ctrl.Get)
	api.DELETE("/:id", ctrl.Delete)
	api.POST("/:id/run", RunRateLimitMiddleware(deps.Limiter), ctrl.Run)
	api.GET("/:id/draft", ctrl.GetDraft)
	api.PUT("/:id/draft", ctrl.PutDraft)
	api.POST("/:id/reload", ctrl.Reload)
	api.GET("/:id/ws", ctrl.Stream)
	return router
}
