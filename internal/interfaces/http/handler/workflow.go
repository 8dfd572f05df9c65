package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appworkflow "github.com/aistudio/backend/internal/application/workflow"
	"github.com/aistudio/backend/internal/domain/workflow"
	"github.com/aistudio/backend/internal/infrastructure/logger"
)

// WorkflowHandler exposes workflow submission, polling and streaming.
type WorkflowHandler struct {
	BaseHandler
	service *appworkflow.Service
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(service *appworkflow.Service) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// RegisterRoutes registers the workflow routes
func (h *WorkflowHandler) RegisterRoutes(rg *gin.RouterGroup) {
	workflows := rg.Group("/workflows")
	{
		workflows.POST("/run", h.Submit)
		workflows.POST("/stream", h.Stream)
		workflows.GET("/tasks", h.Tasks)
		workflows.GET("/tasks/:task_id", h.Poll)
	}
}

// RunWorkflowRequest starts a workflow, asynchronously or streamed.
type RunWorkflowRequest struct {
	WorkflowID string              `json:"workflow_id" binding:"required"`
	Parameters workflow.Parameters `json:"parameters"`
}

// PollTaskRequest binds the poll path parameters.
type PollTaskRequest struct {
	TaskID string `uri:"task_id" binding:"required"`
}

// Submit starts an asynchronous workflow run
// POST /api/v1/workflows/run
func (h *WorkflowHandler) Submit(c *gin.Context) {
	var req RunWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	result, err := h.service.Submit(c.Request.Context(), userID, req.WorkflowID, req.Parameters)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Poll reports the state of a submitted task and, on success, returns the
// output exactly once
// GET /api/v1/workflows/tasks/:task_id
func (h *WorkflowHandler) Poll(c *gin.Context) {
	var req PollTaskRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid task ID")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	result, err := h.service.Poll(c.Request.Context(), userID, req.TaskID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Tasks lists the tasks currently tracked by the registry
// GET /api/v1/workflows/tasks
func (h *WorkflowHandler) Tasks(c *gin.Context) {
	h.Success(c, h.service.Tasks())
}

// Stream starts a streamed workflow run and relays the upstream SSE body
// to the client. Billing settles when the stream ends, whichever way it
// ends: normal completion, upstream error or client disconnect.
// POST /api/v1/workflows/stream
func (h *WorkflowHandler) Stream(c *gin.Context) {
	var req RunWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	stream, err := h.service.StartStream(c.Request.Context(), userID, req.WorkflowID, req.Parameters)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer stream.Close()

	log := logger.GetGinLogger(c)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	buf := make([]byte, 4096)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				// Client went away; closing the stream settles billing for
				// whatever was relayed so far.
				log.Debug("stream client disconnected",
					zap.String("workflow_id", req.WorkflowID),
					zap.Error(writeErr),
				)
				return
			}
			c.Writer.Flush()
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				log.Warn("upstream stream error",
					zap.String("workflow_id", req.WorkflowID),
					zap.Error(readErr),
				)
			}
			return
		}
	}
}
