package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kanshi-dev/kanshi/internal/config"
	"github.com/kanshi-dev/kanshi/internal/discovery"
	"github.com/kanshi-dev/kanshi/internal/logging"
)

// DiscoverHelp is the help message of `kanshi discover`.
const DiscoverHelp = `Kanshi discover -- Generate monitoring targets from what is running on this host

Usage: kanshi discover [OPTIONS...]

Scans for running Docker containers and systemd services, merges them with
an existing configuration if one is given, and prints a targets section
ready to paste into kanshi.yaml.

Options:
  -c, --config=FILE  merge discovered targets into this configuration
  -o, --output=FILE  write the result to FILE instead of stdout
  -h, --help         show this message

Examples:
  Print every discovered target:
   $ kanshi discover

  Add what is new on this host to an existing configuration:
   $ kanshi discover -c kanshi.yaml -o targets.yaml
`

// DiscoverCommand is the `kanshi discover` subcommand.
type DiscoverCommand struct {
	OutStream io.Writer
	ErrStream io.Writer
}

var defaultDiscoverCommand = &DiscoverCommand{
	OutStream: os.Stdout,
	ErrStream: os.Stderr,
}

func (cmd *DiscoverCommand) Run(args []string) (exitCode int) {
	flags := pflag.NewFlagSet("kanshi discover", pflag.ContinueOnError)

	configPath := flags.StringP("config", "c", "", "Merge into this configuration")
	outputPath := flags.StringP("output", "o", "", "Write the result to this file")
	showHelp := flags.BoolP("help", "h", false, "Show help message")

	if err := flags.Parse(args[2:]); err != nil {
		fmt.Fprintln(cmd.ErrStream, err)
		fmt.Fprintf(cmd.ErrStream, "\nPlease see `%s %s -h` for more information.\n", args[0], args[1])
		return 2
	}

	if *showHelp {
		fmt.Fprint(cmd.OutStream, DiscoverHelp)
		return 0
	}

	var targets config.TargetsConfig
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
			return 1
		}
		targets = cfg.Targets
	}

	logger := logging.New("warn", "console")
	defer logger.Sync()

	findings := discovery.Scan(context.Background(), logger)
	added := discovery.Merge(&targets, findings)

	data, err := yaml.Marshal(discovery.Document{Targets: targets})
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 1
	}

	out := cmd.OutStream
	if *outputPath != "" && *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	if _, err := out.Write(data); err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 1
	}

	fmt.Fprintf(cmd.ErrStream, "discovered %d containers and %d services (%d new)\n",
		len(findings.Containers), len(findings.Units), added)

	return 0
}
