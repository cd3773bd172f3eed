// Package ledger records the outcome of each publish run in Postgres.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const Schema = `
CREATE TABLE IF NOT EXISTS dpc_publish_runs (
	run_id           TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL,
	version_name     TEXT NOT NULL,
	commit_hash      TEXT NOT NULL,
	environment_name TEXT NOT NULL,
	branch_name      TEXT NOT NULL,
	resource_count   INTEGER NOT NULL,
	stage            TEXT NOT NULL,
	after_stage      TEXT,
	error            TEXT,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ NOT NULL
)`

const insertRun = `
INSERT INTO dpc_publish_runs (
	run_id, project_id, version_name, commit_hash, environment_name, branch_name,
	resource_count, stage, after_stage, error, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Record struct {
	RunID           string
	ProjectID       string
	VersionName     string
	CommitHash      string
	EnvironmentName string
	BranchName      string
	ResourceCount   int
	Stage           string
	// AfterStage is the last stage a failed run completed.
	AfterStage      string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("RunID is required")
	}
	if strings.TrimSpace(r.Stage) == "" {
		return errors.New("Stage is required")
	}
	if r.StartedAt.IsZero() {
		return errors.New("StartedAt is required")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return errors.New("FinishedAt must not precede StartedAt")
	}
	return nil
}

func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func Insert(ctx context.Context, db Execer, rec Record) error {
	if db == nil {
		return errors.New("execer is required")
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	var afterStage sql.NullString
	if strings.TrimSpace(rec.AfterStage) != "" {
		afterStage = sql.NullString{String: rec.AfterStage, Valid: true}
	}
	var errText sql.NullString
	if strings.TrimSpace(rec.Error) != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err := db.ExecContext(ctx, insertRun,
		rec.RunID,
		rec.ProjectID,
		rec.VersionName,
		rec.CommitHash,
		rec.EnvironmentName,
		rec.BranchName,
		rec.ResourceCount,
		rec.Stage,
		afterStage,
		errText,
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert publish run: %w", err)
	}
	return nil
}
