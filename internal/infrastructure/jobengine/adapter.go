package jobengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aistudio/backend/internal/domain/shared"
	"github.com/aistudio/backend/internal/domain/workflow"
)

// HTTPEngine implements workflow.Engine against the external engine's HTTP
// API. The engine is treated as untrusted: responses are size-capped and
// decoded defensively, and every failure surfaces as an error for the caller
// to handle.
type HTTPEngine struct {
	config *Config
	// client bounds submit/poll requests; streamClient carries no timeout
	// because a stream legitimately runs until upstream finishes.
	client       *http.Client
	streamClient *http.Client
}

// NewHTTPEngine creates a new engine adapter with the given configuration
func NewHTTPEngine(config *Config) (*HTTPEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HTTPEngine{
		config: config,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		streamClient: &http.Client{},
	}, nil
}

// Submit starts an asynchronous workflow run and returns the engine task ID
func (e *HTTPEngine) Submit(ctx context.Context, workflowID string, params workflow.Parameters) (string, error) {
	body := runRequest{
		WorkflowID: workflowID,
		Parameters: params,
		IsAsync:    true,
	}

	var parsed runResponse
	if err := e.postJSON(ctx, runPath, body, &parsed); err != nil {
		return "", err
	}
	if parsed.Code != codeOK {
		return "", fmt.Errorf("jobengine: submit rejected (code %d): %s", parsed.Code, parsed.Msg)
	}
	if parsed.ExecuteID == "" {
		return "", fmt.Errorf("jobengine: submit response missing execute id")
	}
	return parsed.ExecuteID, nil
}

// Poll reports the state of a submitted run
func (e *HTTPEngine) Poll(ctx context.Context, workflowID, taskID string) (*workflow.RunResult, error) {
	path := fmt.Sprintf(historiesPath, url.PathEscape(workflowID), url.PathEscape(taskID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, false)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: poll request failed: %v", shared.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	var parsed historiesResponse
	if err := e.decode(resp, &parsed); err != nil {
		return nil, err
	}
	if parsed.Code == codeQueryFailed {
		return nil, fmt.Errorf("jobengine: run history query failed: %s", parsed.Msg)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("jobengine: run history empty for task %s", taskID)
	}

	history := parsed.Data[0]
	switch history.ExecuteStatus {
	case statusSuccess:
		return &workflow.RunResult{Status: workflow.RunStatusSuccess, Output: history.Output}, nil
	case statusFail:
		return &workflow.RunResult{Status: workflow.RunStatusFailure}, nil
	default:
		return &workflow.RunResult{Status: workflow.RunStatusRunning}, nil
	}
}

// Stream starts a streamed workflow run and hands the chunked response body
// to the caller, who owns closing it.
func (e *HTTPEngine) Stream(ctx context.Context, workflowID string, params workflow.Parameters) (io.ReadCloser, error) {
	body := runRequest{
		WorkflowID: workflowID,
		Parameters: params,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+streamRunPath, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, true)

	resp, err := e.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: stream request failed: %v", shared.ErrEngineUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: stream rejected with status %d: %s", shared.ErrEngineUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp.Body, nil
}

// postJSON sends a JSON request to the engine and decodes the response
func (e *HTTPEngine) postJSON(ctx context.Context, path string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	e.setHeaders(req, true)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", shared.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	return e.decode(resp, out)
}

// decode reads a size-capped response body into out
func (e *HTTPEngine) decode(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: engine returned status %d: %s", shared.ErrEngineUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxResponseBytes))
	if err != nil {
		return fmt.Errorf("jobengine: reading response failed: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("jobengine: malformed engine response: %w", err)
	}
	return nil
}

// setHeaders sets auth and content headers on an engine request
func (e *HTTPEngine) setHeaders(req *http.Request, jsonBody bool) {
	req.Header.Set("Authorization", "Bearer "+e.config.Token)
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}
}
