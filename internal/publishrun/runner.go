package publishrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maia-experience/dpc-cicd/internal/archive"
	"github.com/maia-experience/dpc-cicd/internal/dpc"
	"github.com/maia-experience/dpc-cicd/internal/gitmeta"
	"github.com/maia-experience/dpc-cicd/internal/ledger"
	"github.com/maia-experience/dpc-cicd/internal/platform/requestid"
)

type Stage string

const (
	StageInit               Stage = "init"
	StageAuthenticated      Stage = "authenticated"
	StageResourcesCollected Stage = "resources_collected"
	StagePublished          Stage = "published"
	StageNoOp               Stage = "noop"
	StageExecuted           Stage = "executed"
	StageFailed             Stage = "failed"
)

// StageError is a fatal run failure.
type StageError struct {
	Op      string
	Reached Stage
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Archiver interface {
	Store(ctx context.Context, key string, bundle dpc.Bundle) error
}

var _ Archiver = (*archive.Archiver)(nil)

type Result struct {
	RunID           string
	Stage           Stage
	CommitHash      string
	Resources       int
	ExecutionStatus int
	DryRun          bool
}

type Runner struct {
	Config     dpc.Config
	Root       string
	DryRun     bool
	HTTPClient *http.Client
	Logger     *slog.Logger

	// RunID is generated when empty.
	RunID string
	// Commit resolves the published commit; defaults to gitmeta.HeadCommit.
	Commit func(dir string) (string, error)

	Archive Archiver
	Ledger  ledger.Execer

	Now func() time.Time
}

// Run performs one publish. A nil error means the run ended in executed,
// noop, or (for dry runs) resources_collected.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.defaults()
	started := r.Now()

	res := Result{RunID: r.RunID, Stage: StageInit, DryRun: r.DryRun}
	err := r.run(ctx, &res)
	if err != nil {
		res.Stage = StageFailed
	}
	r.record(ctx, res, err, started)
	return res, err
}

func (r *Runner) defaults() {
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.HTTPClient == nil {
		r.HTTPClient = &http.Client{Timeout: r.Config.HTTPTimeout}
	}
	if r.RunID == "" {
		r.RunID = requestid.New()
	}
	if r.Commit == nil {
		r.Commit = gitmeta.HeadCommit
	}
	if r.Root == "" {
		r.Root = "."
	}
	if r.Now == nil {
		r.Now = func() time.Time { return time.Now().UTC() }
	}
}

func (r *Runner) run(ctx context.Context, res *Result) error {
	cfg := r.Config
	endpoints := cfg.Endpoints()
	logger := r.Logger.With("run_id", r.RunID)

	logger.Info("publish starting",
		"environment", cfg.EnvironmentName,
		"version", cfg.VersionName,
		"branch", cfg.BranchName,
		"artifacts_url", endpoints.Artifacts)
	if cfg.CheckpointDescription != "" {
		logger.Info("using checkpoint description", "checkpoint_description", cfg.CheckpointDescription)
	} else {
		logger.Info("no checkpoint description provided, pipeline will use its default")
	}

	commit, err := r.Commit(r.Root)
	if err != nil {
		return &StageError{Op: "resolve commit hash", Reached: res.Stage, Err: err}
	}
	res.CommitHash = commit
	logger.Info("resolved commit", "commit_hash", commit)

	token, err := dpc.NewAuthenticator(cfg, r.HTTPClient).Token(ctx)
	if err != nil {
		return &StageError{Op: "authenticate", Reached: res.Stage, Err: err}
	}
	res.Stage = StageAuthenticated
	client := dpc.NewClient(r.HTTPClient, token, r.RunID)

	resources, err := dpc.Collect(ctx, r.Root, client, endpoints, logger)
	if err != nil {
		return &StageError{Op: "collect resources", Reached: res.Stage, Err: err}
	}
	res.Stage = StageResourcesCollected
	res.Resources = len(resources)

	if len(resources) == 0 {
		logger.Info("no files or connectors to publish, exiting")
		res.Stage = StageNoOp
		return nil
	}

	bundle, err := dpc.BuildBundle(resources)
	if err != nil {
		return &StageError{Op: "build artifact", Reached: res.Stage, Err: err}
	}

	if r.DryRun {
		for _, entry := range bundle.Entries {
			logger.Info("would publish", "key", entry.Key, "content_type", entry.ContentType)
		}
		logger.Info("dry run, skipping publish and execution", "resources", len(bundle.Entries), "bytes", len(bundle.Body))
		return nil
	}

	meta := dpc.ArtifactMetadata{
		VersionName:     cfg.VersionName,
		CommitHash:      commit,
		EnvironmentName: cfg.EnvironmentName,
		BranchName:      cfg.BranchName,
	}
	logger.Info("publishing artifact",
		"versionName", meta.VersionName,
		"commitHash", meta.CommitHash,
		"environmentName", meta.EnvironmentName,
		"branch", meta.BranchName,
		"resources", len(bundle.Entries))
	if err := dpc.Publish(ctx, client, endpoints.Artifacts, bundle, meta); err != nil {
		return &StageError{Op: "publish artifact", Reached: res.Stage, Err: err}
	}
	res.Stage = StagePublished
	logger.Info("successfully published artifact", "version", cfg.VersionName)

	r.archive(ctx, logger, commit, bundle)

	payload := dpc.NewExecutionPayload(cfg.EnvironmentName, cfg.VersionName, cfg.CheckpointDescription)
	logger.Info("executing checkpoint-enabled pipeline",
		"pipeline", payload.PipelineName,
		"environment", payload.EnvironmentName,
		"version", payload.VersionName,
		"scalar_variables", payload.ScalarVariables)
	status, err := dpc.Execute(ctx, client, endpoints.Executions, payload)
	res.ExecutionStatus = status
	logger.Info("execution trigger status", "status", status)
	if err != nil {
		return &StageError{Op: "execute pipeline", Reached: res.Stage, Err: err}
	}
	res.Stage = StageExecuted
	logger.Info("successfully triggered pipeline execution", "version", cfg.VersionName)
	return nil
}

func (r *Runner) archive(ctx context.Context, logger *slog.Logger, commit string, bundle dpc.Bundle) {
	if r.Archive == nil {
		return
	}
	key := archive.Key(r.Config.ProjectID, r.Config.VersionName, commit)
	if err := r.Archive.Store(ctx, key, bundle); err != nil {
		logger.Warn("archive failed", "key", key, "error", err)
		return
	}
	logger.Info("archived artifact", "key", key, "bytes", len(bundle.Body))
}

func (r *Runner) record(ctx context.Context, res Result, runErr error, started time.Time) {
	if r.Ledger == nil {
		return
	}
	rec := ledger.Record{
		RunID:           res.RunID,
		ProjectID:       r.Config.ProjectID,
		VersionName:     r.Config.VersionName,
		CommitHash:      res.CommitHash,
		EnvironmentName: r.Config.EnvironmentName,
		BranchName:      r.Config.BranchName,
		ResourceCount:   res.Resources,
		Stage:           string(res.Stage),
		StartedAt:       started,
		FinishedAt:      r.Now(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
		if stage, ok := FailedStage(runErr); ok {
			rec.AfterStage = string(stage)
		}
	}
	// The run may have been cancelled; the record should still land.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := ledger.Insert(recordCtx, r.Ledger, rec); err != nil {
		r.Logger.Warn("ledger insert failed", "run_id", res.RunID, "error", err)
	}
}

// IsNoOp reports whether res ended without anything to publish.
func IsNoOp(res Result) bool {
	return res.Stage == StageNoOp
}

// FailedStage returns the last completed stage of a failed run.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Reached, true
	}
	return "", false
}
