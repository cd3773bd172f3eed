package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maia-experience/dpc-cicd/internal/archive"
	"github.com/maia-experience/dpc-cicd/internal/dpc"
	"github.com/maia-experience/dpc-cicd/internal/ledger"
	"github.com/maia-experience/dpc-cicd/internal/platform/objectstore"
	"github.com/maia-experience/dpc-cicd/internal/platform/postgres"
	"github.com/maia-experience/dpc-cicd/internal/platform/requestid"
	"github.com/maia-experience/dpc-cicd/internal/publishrun"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitInvalid = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	var (
		root      string
		dryRun    bool
		logFormat string
	)
	flags := pflag.NewFlagSet("dpc-publish", pflag.ContinueOnError)
	flags.StringVar(&root, "root", ".", "repository root to scan for pipeline files")
	flags.BoolVar(&dryRun, "dry-run", false, "collect and validate resources without publishing")
	flags.StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInvalid
	}

	logger, err := newLogger(stdout, logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInvalid
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := dpc.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid config", "error", err)
		return exitInvalid
	}
	// Archive and ledger are optional sinks; bad settings only disable them.
	archiveCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Warn("archive disabled", "error", err)
	}
	ledgerCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Warn("ledger disabled", "error", err)
	}

	runner := &publishrun.Runner{
		Config: cfg,
		Root:   root,
		DryRun: dryRun,
		Logger: logger,
		RunID:  requestid.New(),
	}

	if archiveCfg.Enabled() && !dryRun {
		arch, err := archive.NewFromConfig(archiveCfg)
		if err != nil {
			logger.Warn("archive disabled", "error", err)
		} else {
			runner.Archive = arch
		}
	}

	if ledgerCfg.Enabled() {
		db, err := postgres.Open(ctx, ledgerCfg)
		if err != nil {
			logger.Warn("ledger unavailable", "error", err)
		} else {
			defer func() { _ = db.Close() }()
			if err := ledger.EnsureSchema(ctx, db); err != nil {
				logger.Warn("ledger unavailable", "error", err)
			} else {
				runner.Ledger = db
			}
		}
	}

	res, err := runner.Run(ctx)
	if err != nil {
		stage, _ := publishrun.FailedStage(err)
		logger.Error("publish failed", "run_id", res.RunID, "after_stage", stage, "error", err)
		return exitFailed
	}
	if publishrun.IsNoOp(res) {
		return exitOK
	}
	logger.Info("publish finished", "run_id", res.RunID, "stage", res.Stage, "resources", res.Resources)
	return exitOK
}

func newLogger(w io.Writer, format string) (*slog.Logger, error) {
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, nil)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, nil)), nil
	default:
		return nil, fmt.Errorf("--log-format must be text or json (got %q)", format)
	}
}
