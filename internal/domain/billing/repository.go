package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PolicyRepository provides access to billing policies
type PolicyRepository interface {
	Create(ctx context.Context, policy *BillingPolicy) error
	Update(ctx context.Context, policy *BillingPolicy) error
	FindByID(ctx context.Context, id uuid.UUID) (*BillingPolicy, error)
	// FindByWorkflowID returns shared.ErrNotFound when no policy is bound to
	// the workflow, which callers treat as "free".
	FindByWorkflowID(ctx context.Context, workflowID string) (*BillingPolicy, error)
	List(ctx context.Context) ([]*BillingPolicy, error)
}

// LedgerRepository appends and reads immutable balance adjustment records
type LedgerRepository interface {
	Append(ctx context.Context, entry *LedgerEntry) error
	FindByUserID(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*LedgerEntry, int64, error)
}

// BalanceRepository adjusts user balances. ConditionalAdjust must apply the
// delta and the non-negative check as one indivisible operation against the
// store: two processes racing on the same user must never overdraw.
type BalanceRepository interface {
	// ConditionalAdjust adds delta to the user's balance. Unless
	// allowNegative is set, the update only applies when the resulting
	// balance stays >= 0; otherwise it returns shared.ErrInsufficientBalance
	// and leaves the balance untouched.
	ConditionalAdjust(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, allowNegative bool) error
	// Balance returns the user's current balance.
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}
