package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aistudio/backend/internal/domain/billing"
	"github.com/aistudio/backend/internal/domain/shared"
)

// GormPolicyRepository implements billing.PolicyRepository using GORM
type GormPolicyRepository struct {
	db *gorm.DB
}

// NewGormPolicyRepository creates a new GormPolicyRepository
func NewGormPolicyRepository(db *gorm.DB) *GormPolicyRepository {
	return &GormPolicyRepository{db: db}
}

// Create inserts a new billing policy
func (r *GormPolicyRepository) Create(ctx context.Context, policy *billing.BillingPolicy) error {
	if err := r.db.WithContext(ctx).Create(policy).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update saves changes to an existing policy
func (r *GormPolicyRepository) Update(ctx context.Context, policy *billing.BillingPolicy) error {
	result := r.db.WithContext(ctx).
		Model(&billing.BillingPolicy{}).
		Where("id = ?", policy.ID).
		Updates(map[string]any{
			"name":       policy.Name,
			"unit_price": policy.UnitPrice,
			"unit":       policy.Unit,
			"batch_size": policy.BatchSize,
			"enabled":    policy.Enabled,
			"updated_at": policy.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a policy by ID
func (r *GormPolicyRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.BillingPolicy, error) {
	var policy billing.BillingPolicy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&policy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &policy, nil
}

// FindByWorkflowID finds the policy bound to a workflow
func (r *GormPolicyRepository) FindByWorkflowID(ctx context.Context, workflowID string) (*billing.BillingPolicy, error) {
	var policy billing.BillingPolicy
	if err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).First(&policy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &policy, nil
}

// List returns all billing policies
func (r *GormPolicyRepository) List(ctx context.Context) ([]*billing.BillingPolicy, error) {
	var policies []*billing.BillingPolicy
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&policies).Error; err != nil {
		return nil, err
	}
	return policies, nil
}

// isUniqueViolation reports whether the error came from a unique constraint
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
