package server

import (
	"context"
	"fmt"
	"time"

	"codepad/internal/common/cache"
	appErr "codepad/pkg/errors"
	"codepad/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const rateKeyPrefix = "codepad:rate:run"

// RateLimitConfig bounds how often one client may start runs.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window"`
	// RunMax is the number of runs per window per client IP; 0 disables limiting.
	RunMax       int           `yaml:"runMax"`
	CacheTimeout time.Duration `yaml:"cacheTimeout"`
}

// RateLimiter enforces fixed-window limits in the shared cache.
type RateLimiter struct {
	cache        cache.WindowCounter
	window       time.Duration
	max          int
	cacheTimeout time.Duration
}

// NewRateLimiter returns nil when limiting is disabled.
func NewRateLimiter(c cache.WindowCounter, cfg RateLimitConfig) *RateLimiter {
	if c == nil || cfg.RunMax <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = 200 * time.Millisecond
	}
	return &RateLimiter{cache: c, window: cfg.Window, max: cfg.RunMax, cacheTimeout: cfg.CacheTimeout}
}

// Allow counts one hit for key and fails with TooManyRequests past the limit.
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cacheTimeout)
	defer cancel()

	count, err := l.cache.IncrWindow(ctx, key, l.window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count > int64(l.max) {
		return appErr.New(appErr.TooManyRequests).WithMessage(fmt.Sprintf("at most %d runs per %s", l.max, l.window))
	}
	return nil
}

// RunRateLimitMiddleware limits runs per client IP. A nil limiter passes everything.
// Cache errors let the request through.
func RunRateLimitMiddleware(l *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		err := l.Allow(c.Request.Context(), fmt.Sprintf("%s:%s", rateKeyPrefix, c.ClientIP()))
		if appErr.Is(err, appErr.TooManyRequests) {
			response.AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
