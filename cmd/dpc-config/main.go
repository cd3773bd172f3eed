package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/maia-experience/dpc-cicd/internal/maiaconfig"
	"github.com/maia-experience/dpc-cicd/internal/platform/env"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// Lookups never fail the job: the workflow reads the printed value, so an
// unreadable file prints the fallback and still exits 0.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	level := slog.LevelInfo
	if debug, _ := env.Bool("DPC_DEBUG", false); debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	command, rest := args[0], args[1:]
	switch command {
	case "env-name":
		path, ok := parseFile(command, maiaconfig.DefaultConfigPath, rest, stderr)
		if !ok {
			return 2
		}
		name, err := maiaconfig.EnvironmentName(path)
		if err != nil {
			logger.Debug("no environment in config", "error", err)
		}
		fmt.Fprintln(stdout, name)
		return 0
	case "user-env":
		path, ok := parseFile(command, maiaconfig.DefaultMappingsPath, rest, stderr)
		if !ok {
			return 2
		}
		res, err := maiaconfig.ResolveUser(path, env.NonEmpty("GH_USER", ""))
		if err != nil {
			logger.Debug("user mappings unreadable", "error", err)
		}
		fmt.Fprintln(stdout, res.String())
		return 0
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n", command)
		printUsage(stderr)
		return 2
	}
}

func parseFile(command, def string, args []string, stderr io.Writer) (string, bool) {
	var path string
	flags := pflag.NewFlagSet("dpc-config "+command, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&path, "file", def, "YAML file to read")
	if err := flags.Parse(args); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return "", false
	}
	return path, true
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage: dpc-config <command> [--file PATH]

commands:
  env-name   print environment_name from `+maiaconfig.DefaultConfigPath+`
  user-env   print <environment>|mapped or <environment>|default for $GH_USER
             using `+maiaconfig.DefaultMappingsPath+`
`)
}
