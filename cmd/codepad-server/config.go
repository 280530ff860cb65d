package main

import (
	"fmt"
	"time"

	"codepad/internal/app"
	"codepad/internal/common/http/middleware"
	"codepad/internal/server"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxHeaderBytes  = 1 << 20
	defaultMaxSessions     = 256
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	MaxHeaderBytes int           `yaml:"maxHeaderBytes"`
	// MaxSessions caps concurrently mounted views; each one owns an interpreter.
	MaxSessions int                    `yaml:"maxSessions"`
	CORS        middleware.CORSConfig  `yaml:"cors"`
	RateLimit   server.RateLimitConfig `yaml:"rateLimit"`
	Hub         server.HubConfig       `yaml:"hub"`
}

// AppConfig holds the server host configuration.
type AppConfig struct {
	app.Config `yaml:",inline"`

	Server ServerConfig `yaml:"server"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := app.LoadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = defaultMaxHeaderBytes
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = defaultMaxSessions
	}
	if cfg.Runtime.Host == "" {
		cfg.Runtime.Host = "browser"
	}
	if cfg.Server.RateLimit.RunMax > 0 && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required when server.rateLimit.runMax is set")
	}
	if len(cfg.Server.Hub.AllowedOrigins) == 0 && cfg.Server.CORS.Enabled {
		cfg.Server.Hub.AllowedOrigins = cfg.Server.CORS.AllowedOrigins
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
