package cache

import (
	"context"
	"time"
)

// Cache is the shared store behind server drafts and run rate limiting.
type Cache interface {
	KV
	WindowCounter

	Ping(ctx context.Context) error
	Close() error
}

// KV holds plain string values.
type KV interface {
	// Get returns "" and a nil error for a missing key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value; ttl 0 means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// WindowCounter counts hits in fixed windows.
type WindowCounter interface {
	// IncrWindow increments key and returns the new count. The first hit of a
	// window starts its expiry; the count resets once window has elapsed.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}
