package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aistudio/backend/internal/domain/billing"
	"github.com/aistudio/backend/internal/domain/shared"
)

// PolicyProvider resolves the billing policy bound to a workflow. It is
// satisfied by the policy repository directly or by a caching layer in front
// of it; shared.ErrNotFound means the workflow is free.
type PolicyProvider interface {
	FindByWorkflowID(ctx context.Context, workflowID string) (*billing.BillingPolicy, error)
}

// DeductionResult describes the outcome of one metered deduction
type DeductionResult struct {
	Free        bool            `json:"free"`
	Cost        decimal.Decimal `json:"cost"`
	Description string          `json:"description"`
}

// freeResult is returned whenever no enabled policy applies or the computed
// cost is zero; the balance collaborator is never called on this path.
func freeResult() *DeductionResult {
	return &DeductionResult{
		Free:        true,
		Cost:        decimal.Zero,
		Description: "free of charge, no deduction",
	}
}

// Service orchestrates metered billing: the pre-flight eligibility check
// before a billable workflow starts and the post-hoc deduction after it
// completes.
type Service struct {
	policies PolicyProvider
	balances billing.BalanceRepository
	ledger   billing.LedgerRepository
	logger   *zap.Logger
}

// NewService creates a new billing service
func NewService(
	policies PolicyProvider,
	balances billing.BalanceRepository,
	ledger billing.LedgerRepository,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		policies: policies,
		balances: balances,
		ledger:   ledger,
		logger:   logger,
	}
}

// EnsureEligible rejects a billable workflow before any work starts when the
// user has no balance left. A workflow without an enabled policy is free and
// unconditionally eligible. The check is deliberately conservative: any
// non-positive balance blocks an enabled policy regardless of the eventual
// cost.
func (s *Service) EnsureEligible(ctx context.Context, userID uuid.UUID, workflowID string) error {
	policy, err := s.policies.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if !policy.Enabled {
		return nil
	}

	balance, err := s.balances.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return shared.ErrInsufficientBalance
	}
	return nil
}

// Deduct converts the measured usage of one completed workflow run into a
// cost and applies it to the user's balance exactly once. The balance check
// and mutation happen as a single conditional update in the store, so
// concurrent deductions for the same user cannot overdraw unless
// allowNegative is set. On success exactly one ledger entry is appended.
func (s *Service) Deduct(ctx context.Context, userID uuid.UUID, workflowID string, usage *int64, allowNegative bool) (*DeductionResult, error) {
	policy, err := s.policies.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return freeResult(), nil
		}
		return nil, err
	}
	if !policy.Enabled {
		return freeResult(), nil
	}

	cost := policy.Cost(usage)
	if cost.LessThanOrEqual(decimal.Zero) {
		return freeResult(), nil
	}

	if err := s.balances.ConditionalAdjust(ctx, userID, cost.Neg(), allowNegative); err != nil {
		return nil, err
	}

	description := billing.DescribeConsumption(policy.Name, policy.UnitPrice, policy.Unit, policy.BatchSize, usage, cost)

	entry, err := billing.NewConsumptionEntry(userID, workflowID, cost, description)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		// The balance was already adjusted; a missing ledger entry is an
		// auditing gap, not a double charge. Surface it loudly.
		s.logger.Error("ledger append failed after balance adjustment",
			zap.String("user_id", userID.String()),
			zap.String("workflow_id", workflowID),
			zap.String("cost", cost.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &DeductionResult{
		Free:        false,
		Cost:        cost,
		Description: description,
	}, nil
}

// Balance returns the user's current balance
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.balances.Balance(ctx, userID)
}

// LedgerEntries returns one page of the user's ledger, newest first
func (s *Service) LedgerEntries(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*billing.LedgerEntry, int64, error) {
	return s.ledger.FindByUserID(ctx, userID, page, pageSize)
}

// Recharge credits a user's balance and appends the matching ledger entry
func (s *Service) Recharge(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*billing.LedgerEntry, error) {
	entry, err := billing.NewRechargeEntry(userID, amount, description)
	if err != nil {
		return nil, err
	}

	if err := s.balances.ConditionalAdjust(ctx, userID, amount, false); err != nil {
		return nil, err
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		s.logger.Error("ledger append failed after recharge",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return entry, nil
}
