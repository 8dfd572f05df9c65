package workflow

import (
	"context"
	"io"
)

// RunStatus is the execution state reported by the job engine
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// RunResult is the outcome of polling a submitted job. Output is only
// meaningful for a successful run.
type RunResult struct {
	Status RunStatus
	Output string
}

// Parameters are the opaque inputs forwarded to a workflow run
type Parameters map[string]any

// Engine is the external job-execution collaborator. Implementations are
// treated as untrusted: transient failures and malformed payloads must
// surface as errors, and callers decide any retry policy.
type Engine interface {
	// Submit starts an asynchronous workflow run and returns the engine's
	// task ID for later polling.
	Submit(ctx context.Context, workflowID string, params Parameters) (string, error)
	// Poll reports the current state of a submitted run.
	Poll(ctx context.Context, workflowID, taskID string) (*RunResult, error)
	// Stream starts a synchronous run whose response arrives as a chunked
	// server-push byte stream. The caller owns closing the returned body.
	Stream(ctx context.Context, workflowID string, params Parameters) (io.ReadCloser, error)
}
