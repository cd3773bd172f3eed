package dpc

import (
	"context"
	"fmt"
	"net/http"
)

// CheckpointPipelineName is the published pipeline every successful publish
// triggers.
const CheckpointPipelineName = ".maia-experience/sql-init/Maia Init - With Checkpoints"

type ExecutionPayload struct {
	PipelineName    string            `json:"pipelineName"`
	EnvironmentName string            `json:"environmentName"`
	VersionName     string            `json:"versionName"`
	ScalarVariables map[string]string `json:"scalarVariables,omitempty"`
}

// NewExecutionPayload targets CheckpointPipelineName. scalarVariables is only
// set when checkpointDescription is non-empty, so the pipeline falls back to
// its own default otherwise.
func NewExecutionPayload(environmentName, versionName, checkpointDescription string) ExecutionPayload {
	p := ExecutionPayload{
		PipelineName:    CheckpointPipelineName,
		EnvironmentName: environmentName,
		VersionName:     versionName,
	}
	if checkpointDescription != "" {
		p.ScalarVariables = map[string]string{"checkpoint_description": checkpointDescription}
	}
	return p
}

// Execute triggers a pipeline execution and returns the accepted status.
// There is no polling for completion.
func Execute(ctx context.Context, client *Client, url string, payload ExecutionPayload) (int, error) {
	resp, err := client.PostJSON(ctx, url, payload)
	if err != nil {
		return 0, fmt.Errorf("execute pipeline: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, newStatusError("execute pipeline", resp)
	}
}
