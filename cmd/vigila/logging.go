package main

import (
	"fmt"
	"os"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/logger"
)

// setupLogging initializes the process logger from the config, with CLI
// flags taking precedence. Returns a cleanup func that closes the log
// file when one was opened.
func setupLogging(cli *CLI, cfg config.LoggingConfig) (func(), error) {
	if cli.LogLevel != "" {
		cfg.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Format = cli.LogFormat
	}
	if cli.LogFile != "" {
		cfg.File = cli.LogFile
	}

	output := os.Stderr
	cleanup := func() {}
	if cfg.File != "" {
		f, closer, err := logger.OpenLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output = f
		cleanup = closer
	}

	logger.Init(logger.ParseLevel(cfg.Level), output, cfg.Format)
	return cleanup, nil
}
