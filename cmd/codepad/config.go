package main

import (
	"fmt"
	"os"

	"codepad/internal/app"
)

const (
	defaultLogLevel    = "warn"
	defaultLogFormat   = "console"
	defaultHistoryFile = ".codepad_history"
)

// REPLConfig holds terminal settings.
type REPLConfig struct {
	HistoryFile string `yaml:"historyFile"`
}

// AppConfig holds the terminal host configuration.
type AppConfig struct {
	app.Config `yaml:",inline"`

	REPL REPLConfig `yaml:"repl"`
}

// loadAppConfig reads path; a missing file is only an error when required.
func loadAppConfig(path string, required bool) (*AppConfig, error) {
	var cfg AppConfig
	if _, err := os.Stat(path); err == nil || required {
		if err := app.LoadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = defaultLogLevel
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = defaultLogFormat
	}
	if cfg.REPL.HistoryFile == "" {
		cfg.REPL.HistoryFile = defaultHistoryFile
	}
	return &cfg, nil
}

func (c *AppConfig) finish() error {
	if err := c.ApplyDefaults(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
