package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/spf13/pflag"

	"github.com/kanshi-dev/kanshi/internal/checker"
	"github.com/kanshi-dev/kanshi/internal/config"
	"github.com/kanshi-dev/kanshi/internal/logging"
	"github.com/kanshi-dev/kanshi/internal/meta"
)

func init() {
	checker.HTTPUserAgent = fmt.Sprintf("kanshi/%s health check", meta.Version)
}

// KanshiCommand is the top level command, covering server and oneshot mode.
type KanshiCommand struct {
	OutStream io.Writer
	ErrStream io.Writer

	ConfigPath  string
	OneshotMode bool
	WatchConfig bool
	ShowVersion bool
	ShowHelp    bool
}

var defaultKanshiCommand = &KanshiCommand{
	OutStream: os.Stdout,
	ErrStream: os.Stderr,
}

//go:embed help.txt
var helpText string

func (cmd *KanshiCommand) PrintUsage() {
	tmpl := template.Must(template.New("help.txt").Parse(helpText))
	tmpl.Execute(cmd.ErrStream, map[string]interface{}{
		"Version": meta.Version,
	})
}

func (cmd *KanshiCommand) ParseArgs(args []string) (exitCode int) {
	flags := pflag.NewFlagSet("kanshi", pflag.ContinueOnError)

	flags.StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	flags.BoolVarP(&cmd.OneshotMode, "oneshot", "1", false, "Check every target once and exit")
	flags.BoolVarP(&cmd.WatchConfig, "watch", "w", false, "Reload targets when the configuration file changes")
	flags.BoolVarP(&cmd.ShowVersion, "version", "v", false, "Show version")
	flags.BoolVarP(&cmd.ShowHelp, "help", "h", false, "Show help message")

	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintln(cmd.ErrStream, err)
		fmt.Fprintf(cmd.ErrStream, "\nPlease see `%s -h` for more information.\n", args[0])
		return 2
	}

	if cmd.ShowVersion || cmd.ShowHelp {
		return 0
	}

	if rest := flags.Args(); len(rest) > 0 {
		fmt.Fprintf(cmd.ErrStream, "unexpected argument: %s\n", strings.Join(rest, " "))
		fmt.Fprintf(cmd.ErrStream, "\nPlease see `%s -h` for more information.\n", args[0])
		return 2
	}

	if cmd.OneshotMode && cmd.WatchConfig {
		fmt.Fprintln(cmd.ErrStream, "warning: watch option will ignored in the oneshot mode.")
	}

	return 0
}

func (cmd *KanshiCommand) PrintVersion() {
	fmt.Fprintf(cmd.OutStream, "Kanshi version %s (%s)\n", meta.Version, meta.Commit)
}

func (cmd *KanshiCommand) Run(args []string) (exitCode int) {
	if code := cmd.ParseArgs(args); code != 0 {
		return code
	}

	if cmd.ShowVersion {
		cmd.PrintVersion()
		return 0
	}

	if cmd.ShowHelp {
		cmd.PrintUsage()
		return 0
	}

	// Resolve the path once so that the watcher and the loader agree on
	// which file the configuration came from.
	if cmd.ConfigPath == "" {
		cmd.ConfigPath = os.Getenv("KANSHI_CONFIG")
	}

	cfg, err := config.Load(cmd.ConfigPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cmd.OneshotMode {
		return cmd.RunOneshot(ctx, cfg, logger)
	}
	return cmd.RunServer(ctx, cfg, logger)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "oneshot":
			os.Args[1] = "-1"
			os.Exit(defaultKanshiCommand.Run(os.Args))
		case "discover":
			os.Exit(defaultDiscoverCommand.Run(os.Args))
		}
	}

	os.Exit(defaultKanshiCommand.Run(os.Args))
}
