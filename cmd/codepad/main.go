package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codepad/internal/app"
	"codepad/internal/cli/repl"
	"codepad/internal/playground/notify"
	"codepad/internal/playground/runtime"
	"codepad/internal/playground/view"
	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/codepad.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	host := flag.String("host", "", "Override host kind (auto, packaged, browser)")
	bundle := flag.String("bundle", "", "Override runtime bundle directory or .tar.zst")
	remote := flag.String("remote", "", "Override remote runtime URL (http(s):// or s3://)")
	history := flag.String("history", "", "Override readline history file")
	flag.Parse()

	required := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			required = true
		}
	})
	cfg, err := loadAppConfig(*configPath, required)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Runtime.Host = *host
	}
	if *bundle != "" {
		cfg.Runtime.BundlePath = *bundle
	}
	if *remote != "" {
		cfg.Runtime.RemoteURL = *remote
	}
	if *history != "" {
		cfg.REPL.HistoryFile = *history
	}
	if err := cfg.finish(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error(ctx, "codepad exited", zap.Error(err))
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *AppConfig) error {
	comps, err := app.Build(ctx, cfg.Config, app.Options{Probe: runtime.SystemProbe()})
	if err != nil {
		return err
	}
	defer comps.Close()

	rl, err := repl.NewReadline(cfg.REPL.HistoryFile)
	if err != nil {
		return fmt.Errorf("init line editor failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	session := repl.New(rl.Stdout())
	rep := comps.Reporter(notify.NewWriterNotifier(session.Output()), nil)
	v := view.New(comps.ViewConfig("", comps.Drafts(""), rep, session.Listener()))
	session.Attach(v)

	fmt.Fprintln(rl.Stdout(), "codepad: type Lua, :run to execute, :help for commands")
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Close(context.Background())
	return session.Run(ctx, rl)
}
