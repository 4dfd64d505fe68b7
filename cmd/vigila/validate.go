package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vigila-ai/vigila/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH" type:"path"`

	// PrintConfig prints the expanded configuration with defaults
	// applied and environment overrides resolved.
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration."`
}

func (c *ValidateCmd) Run(*CLI) error {
	config.LoadDotEnv()

	cfg, err := config.NewLoader(config.LoaderOptions{Path: c.Config}).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", c.Config, err)
		return fmt.Errorf("config validation failed")
	}

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("%s: ok\n", c.Config)
	return nil
}
