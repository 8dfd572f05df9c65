package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aistudio/backend/internal/domain/billing"
)

// PolicyInvalidator drops a cached policy after a write. Satisfied by the
// redis policy cache; a nil invalidator disables invalidation.
type PolicyInvalidator interface {
	Invalidate(ctx context.Context, workflowID string)
}

// PolicyService manages the billing policies bound to workflows.
type PolicyService struct {
	policies    billing.PolicyRepository
	invalidator PolicyInvalidator
	logger      *zap.Logger
}

// NewPolicyService creates a new policy service
func NewPolicyService(policies billing.PolicyRepository, invalidator PolicyInvalidator, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		policies:    policies,
		invalidator: invalidator,
		logger:      logger,
	}
}

// CreatePolicyInput carries the fields for a new policy
type CreatePolicyInput struct {
	Name       string
	WorkflowID string
	UnitPrice  decimal.Decimal
	Unit       billing.MeteringUnit
	BatchSize  int
}

// UpdatePolicyInput carries the mutable fields of a policy. Enabled is a
// pointer so callers can leave the flag untouched.
type UpdatePolicyInput struct {
	Name      string
	UnitPrice decimal.Decimal
	Unit      billing.MeteringUnit
	BatchSize int
	Enabled   *bool
}

// Create binds a new metering policy to a workflow.
func (s *PolicyService) Create(ctx context.Context, input CreatePolicyInput) (*billing.BillingPolicy, error) {
	policy, err := billing.NewBillingPolicy(input.Name, input.WorkflowID, input.UnitPrice, input.Unit, input.BatchSize)
	if err != nil {
		return nil, err
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, err
	}

	s.logger.Info("billing policy created",
		zap.String("policy_id", policy.ID.String()),
		zap.String("workflow_id", policy.WorkflowID),
		zap.String("unit", string(policy.Unit)),
	)
	return policy, nil
}

// Update changes an existing policy's metering rule and drops the cached copy.
func (s *PolicyService) Update(ctx context.Context, id uuid.UUID, input UpdatePolicyInput) (*billing.BillingPolicy, error) {
	policy, err := s.policies.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := policy.Update(input.Name, input.UnitPrice, input.Unit, input.BatchSize); err != nil {
		return nil, err
	}
	if input.Enabled != nil {
		if *input.Enabled {
			policy.Enable()
		} else {
			policy.Disable()
		}
	}

	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, policy.WorkflowID)
	}

	s.logger.Info("billing policy updated",
		zap.String("policy_id", policy.ID.String()),
		zap.String("workflow_id", policy.WorkflowID),
		zap.Bool("enabled", policy.Enabled),
	)
	return policy, nil
}

// Get returns one policy by ID.
func (s *PolicyService) Get(ctx context.Context, id uuid.UUID) (*billing.BillingPolicy, error) {
	return s.policies.FindByID(ctx, id)
}

// List returns all policies.
func (s *PolicyService) List(ctx context.Context) ([]*billing.BillingPolicy, error) {
	return s.policies.List(ctx)
}
