// Command vigila runs the conversational backend for veterinary
// inspection planning.
//
// Usage:
//
//	vigila serve --config vigila.yaml
//	vigila validate vigila.yaml
//	vigila schema > config-schema.json
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	vigila "github.com/vigila-ai/vigila"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" default:"1" help:"Start the chat webhook server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the JSON Schema of the configuration document."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides config."`
	LogFile   string `help:"Log file path (empty = stderr). Overrides config."`
	LogFormat string `help:"Log format (simple or verbose). Overrides config."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(*CLI) error {
	fmt.Printf("vigila %s\n", vigila.Version)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("vigila"),
		kong.Description("Conversational backend for veterinary inspection planning."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "vigila: %v\n", err)
		os.Exit(1)
	}
}
