package workflow

import (
	"context"
	"io"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appbilling "github.com/aistudio/backend/internal/application/billing"
	"github.com/aistudio/backend/internal/domain/shared"
	"github.com/aistudio/backend/internal/domain/workflow"
)

// Biller is the billing collaborator the workflow service depends on.
// Satisfied by *billing.Service.
type Biller interface {
	EnsureEligible(ctx context.Context, userID uuid.UUID, workflowID string) error
	Deduct(ctx context.Context, userID uuid.UUID, workflowID string, usage *int64, allowNegative bool) (*appbilling.DeductionResult, error)
}

// SubmitResult is returned when an asynchronous job has been accepted
type SubmitResult struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// PollResult reports the state of a submitted job. Output and Billing are
// only set once the job succeeded and its result was consumed.
type PollResult struct {
	Status  workflow.RunStatus          `json:"status"`
	Output  string                      `json:"output,omitempty"`
	Billing *appbilling.DeductionResult `json:"billing,omitempty"`
}

// Service coordinates the external job engine, the in-process task registry
// and metered billing for the three operational entry points: submit, poll
// and stream.
type Service struct {
	engine   workflow.Engine
	registry *workflow.TaskRegistry
	biller   Biller
	logger   *zap.Logger
}

// NewService creates a new workflow service
func NewService(engine workflow.Engine, registry *workflow.TaskRegistry, biller Biller, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:   engine,
		registry: registry,
		biller:   biller,
		logger:   logger,
	}
}

// Submit starts an asynchronous workflow run after the pre-flight balance
// check and registers the returned task for later polling.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, workflowID string, params workflow.Parameters) (*SubmitResult, error) {
	if err := s.biller.EnsureEligible(ctx, userID, workflowID); err != nil {
		return nil, err
	}

	taskID, err := s.engine.Submit(ctx, workflowID, params)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Add(taskID, workflowID); err != nil {
		// The engine handed out a task ID we already track; surface the
		// protocol error instead of overwriting.
		s.logger.Error("task registration failed",
			zap.String("task_id", taskID),
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("workflow job submitted",
		zap.String("task_id", taskID),
		zap.String("workflow_id", workflowID),
		zap.String("user_id", userID.String()),
	)

	return &SubmitResult{TaskID: taskID, Message: "workflow started"}, nil
}

// Poll reports the state of a registered job. A successful run is consumed
// exactly once: the registry entry is removed, the output's character count
// is billed, and the output returned. A failed run is purged from the
// registry and surfaced as a job failure without any deduction. Billing
// failures after a delivered result are logged, never returned: the work is
// already done and cannot be retracted.
func (s *Service) Poll(ctx context.Context, userID uuid.UUID, taskID string) (*PollResult, error) {
	workflowID, ok := s.registry.Get(taskID)
	if !ok {
		return nil, shared.ErrTaskNotFound
	}

	result, err := s.engine.Poll(ctx, workflowID, taskID)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case workflow.RunStatusSuccess:
		if err := s.registry.Delete(taskID); err != nil {
			// A concurrent poll already consumed this result.
			return nil, err
		}

		usage := int64(utf8.RuneCountInString(result.Output))
		deduction, err := s.biller.Deduct(ctx, userID, workflowID, &usage, false)
		if err != nil {
			s.logger.Warn("deduction failed after successful job",
				zap.String("task_id", taskID),
				zap.String("workflow_id", workflowID),
				zap.String("user_id", userID.String()),
				zap.Int64("usage", usage),
				zap.Error(err),
			)
		}

		return &PollResult{
			Status:  workflow.RunStatusSuccess,
			Output:  result.Output,
			Billing: deduction,
		}, nil

	case workflow.RunStatusFailure:
		if err := s.registry.Delete(taskID); err != nil {
			s.logger.Warn("purging failed task from registry",
				zap.String("task_id", taskID),
				zap.Error(err),
			)
		}
		return nil, shared.ErrJobFailed

	default:
		return &PollResult{Status: workflow.RunStatusRunning}, nil
	}
}

// Tasks returns a snapshot of all live registry entries, for diagnostics
func (s *Service) Tasks() map[string]string {
	return s.registry.List()
}

// StartStream starts a streamed workflow run after the pre-flight balance
// check and wraps the upstream body in a metering reader. The caller owns
// the returned stream; closing it, reading it to the end or hitting an
// upstream error all settle the deduction exactly once.
func (s *Service) StartStream(ctx context.Context, userID uuid.UUID, workflowID string, params workflow.Parameters) (io.ReadCloser, error) {
	if err := s.biller.EnsureEligible(ctx, userID, workflowID); err != nil {
		return nil, err
	}

	upstream, err := s.engine.Stream(ctx, workflowID, params)
	if err != nil {
		return nil, err
	}

	return appbilling.NewStreamMeter(
		upstream,
		s.biller,
		userID,
		workflowID,
		appbilling.WithMeterLogger(s.logger),
	), nil
}
