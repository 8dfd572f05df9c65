package jobengine

// Engine API paths
const (
	runPath       = "/v1/workflow/run"
	streamRunPath = "/v1/workflow/stream_run"
	historiesPath = "/v1/workflows/%s/run_histories/%s"
)

// engine status and response codes
const (
	codeOK          = 0
	codeQueryFailed = 4200

	statusSuccess = "Success"
	statusFail    = "Fail"
)

// runRequest is the body for both asynchronous and streamed runs
type runRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Parameters map[string]any `json:"parameters"`
	IsAsync    bool           `json:"is_async,omitempty"`
}

// runResponse is the engine's answer to an asynchronous submit
type runResponse struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	ExecuteID string `json:"execute_id"`
}

// runHistory is one execution record returned when polling
type runHistory struct {
	ExecuteStatus string `json:"execute_status"`
	Output        string `json:"output"`
}

// historiesResponse is the engine's answer to a poll
type historiesResponse struct {
	Code int          `json:"code"`
	Msg  string       `json:"msg"`
	Data []runHistory `json:"data"`
}
