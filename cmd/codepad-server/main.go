package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codepad/internal/app"
	"codepad/internal/playground/observer"
	"codepad/internal/playground/runtime"
	"codepad/internal/playground/view"
	"codepad/internal/server"
	"codepad/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/codepad-server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	remote := flag.String("remote", "", "Override remote runtime URL (http(s):// or s3://)")
	bundle := flag.String("bundle", "", "Override runtime bundle directory or .tar.zst")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}
	if *remote != "" {
		appCfg.Runtime.RemoteURL = *remote
	}
	if *bundle != "" {
		appCfg.Runtime.Host = string(runtime.HostPackaged)
		appCfg.Runtime.BundlePath = *bundle
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observer.NewPrometheusRecorder(registry)

	comps, err := app.Build(context.Background(), appCfg.Config, app.Options{
		Metrics: metrics,
		Probe:   runtime.SystemProbe(),
	})
	if err != nil {
		logger.Error(context.Background(), "init playground failed", zap.Error(err))
		return
	}
	defer comps.Close()

	hub := server.NewHub(appCfg.Server.Hub)
	rep := comps.Reporter(hub, hub)
	sessions := server.NewSessionManager(func(id string, listener view.Listener) *view.View {
		return view.New(comps.ViewConfig(id, comps.Drafts(id), rep, listener))
	}, hub, appCfg.Server.MaxSessions)

	var limiter *server.RateLimiter
	if comps.Cache != nil {
		limiter = server.NewRateLimiter(comps.Cache, appCfg.Server.RateLimit)
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr: appCfg.Server.Addr,
		Handler: server.NewRouter(server.RouterDeps{
			Sessions: sessions,
			Hub:      hub,
			Limiter:  limiter,
			Gatherer: registry,
			CORS:     appCfg.Server.CORS,
			Checks:   comps.Checks(),
		}),
		ReadTimeout:    appCfg.Server.ReadTimeout,
		WriteTimeout:   appCfg.Server.WriteTimeout,
		IdleTimeout:    appCfg.Server.IdleTimeout,
		MaxHeaderBytes: appCfg.Server.MaxHeaderBytes,
	}

	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "codepad server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	sessions.Close(ctx)
}
