package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aistudio/backend/internal/domain/billing"
	"github.com/aistudio/backend/internal/domain/shared"
)

// MockPolicyRepository implements billing.PolicyRepository for testing
type MockPolicyRepository struct {
	mock.Mock
}

func (m *MockPolicyRepository) Create(ctx context.Context, policy *billing.BillingPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) Update(ctx context.Context, policy *billing.BillingPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.BillingPolicy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.BillingPolicy), args.Error(1)
}

func (m *MockPolicyRepository) FindByWorkflowID(ctx context.Context, workflowID string) (*billing.BillingPolicy, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.BillingPolicy), args.Error(1)
}

func (m *MockPolicyRepository) List(ctx context.Context) ([]*billing.BillingPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.BillingPolicy), args.Error(1)
}

// recordingInvalidator captures cache invalidations
type recordingInvalidator struct {
	workflowIDs []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, workflowID string) {
	r.workflowIDs = append(r.workflowIDs, workflowID)
}

func TestPolicyService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a valid policy", func(t *testing.T) {
		repo := new(MockPolicyRepository)
		repo.On("Create", ctx, mock.MatchedBy(func(p *billing.BillingPolicy) bool {
			return p.WorkflowID == "wf-1" && p.Enabled
		})).Return(nil)

		svc := NewPolicyService(repo, nil, zap.NewNop())
		policy, err := svc.Create(ctx, CreatePolicyInput{
			Name:       "Copywriting",
			WorkflowID: "wf-1",
			UnitPrice:  decimal.NewFromInt(10),
			Unit:       billing.MeteringUnitPerCharacter,
			BatchSize:  100,
		})

		require.NoError(t, err)
		assert.Equal(t, "Copywriting", policy.Name)
		repo.AssertExpectations(t)
	})

	t.Run("invalid input never reaches the repository", func(t *testing.T) {
		repo := new(MockPolicyRepository)
		svc := NewPolicyService(repo, nil, zap.NewNop())

		_, err := svc.Create(ctx, CreatePolicyInput{
			Name:       "",
			WorkflowID: "wf-1",
			UnitPrice:  decimal.NewFromInt(10),
			Unit:       billing.MeteringUnitPerCharacter,
		})

		assert.Error(t, err)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("duplicate workflow binding surfaces", func(t *testing.T) {
		repo := new(MockPolicyRepository)
		repo.On("Create", ctx, mock.Anything).Return(shared.ErrAlreadyExists)

		svc := NewPolicyService(repo, nil, zap.NewNop())
		_, err := svc.Create(ctx, CreatePolicyInput{
			Name:       "Copywriting",
			WorkflowID: "wf-1",
			UnitPrice:  decimal.NewFromInt(10),
			Unit:       billing.MeteringUnitPerCharacter,
		})

		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

func TestPolicyService_Update(t *testing.T) {
	ctx := context.Background()

	existing := func(t *testing.T) *billing.BillingPolicy {
		t.Helper()
		policy, err := billing.NewBillingPolicy("Copywriting", "wf-1", decimal.NewFromInt(10), billing.MeteringUnitPerCharacter, 100)
		require.NoError(t, err)
		return policy
	}

	t.Run("updates the rule and invalidates the cache", func(t *testing.T) {
		policy := existing(t)
		repo := new(MockPolicyRepository)
		repo.On("FindByID", ctx, policy.ID).Return(policy, nil)
		repo.On("Update", ctx, policy).Return(nil)
		invalidator := &recordingInvalidator{}

		svc := NewPolicyService(repo, invalidator, zap.NewNop())
		disabled := false
		updated, err := svc.Update(ctx, policy.ID, UpdatePolicyInput{
			Name:      "Copywriting v2",
			UnitPrice: decimal.NewFromInt(20),
			Unit:      billing.MeteringUnitPerCall,
			BatchSize: 1,
			Enabled:   &disabled,
		})

		require.NoError(t, err)
		assert.Equal(t, "Copywriting v2", updated.Name)
		assert.Equal(t, billing.MeteringUnitPerCall, updated.Unit)
		assert.False(t, updated.Enabled)
		assert.Equal(t, []string{"wf-1"}, invalidator.workflowIDs)
		repo.AssertExpectations(t)
	})

	t.Run("nil enabled flag leaves the state alone", func(t *testing.T) {
		policy := existing(t)
		policy.Disable()
		repo := new(MockPolicyRepository)
		repo.On("FindByID", ctx, policy.ID).Return(policy, nil)
		repo.On("Update", ctx, policy).Return(nil)

		svc := NewPolicyService(repo, &recordingInvalidator{}, zap.NewNop())
		updated, err := svc.Update(ctx, policy.ID, UpdatePolicyInput{
			Name:      "Copywriting",
			UnitPrice: decimal.NewFromInt(10),
			Unit:      billing.MeteringUnitPerCharacter,
			BatchSize: 100,
		})

		require.NoError(t, err)
		assert.False(t, updated.Enabled)
	})

	t.Run("missing policy is not found", func(t *testing.T) {
		repo := new(MockPolicyRepository)
		id := uuid.New()
		repo.On("FindByID", ctx, id).Return(nil, shared.ErrNotFound)

		svc := NewPolicyService(repo, &recordingInvalidator{}, zap.NewNop())
		_, err := svc.Update(ctx, id, UpdatePolicyInput{
			Name:      "x",
			UnitPrice: decimal.Zero,
			Unit:      billing.MeteringUnitPerCharacter,
		})

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("persistence failure skips invalidation", func(t *testing.T) {
		policy := existing(t)
		repo := new(MockPolicyRepository)
		repo.On("FindByID", ctx, policy.ID).Return(policy, nil)
		repo.On("Update", ctx, policy).Return(shared.ErrNotFound)
		invalidator := &recordingInvalidator{}

		svc := NewPolicyService(repo, invalidator, zap.NewNop())
		_, err := svc.Update(ctx, policy.ID, UpdatePolicyInput{
			Name:      "Copywriting",
			UnitPrice: decimal.NewFromInt(10),
			Unit:      billing.MeteringUnitPerCharacter,
			BatchSize: 100,
		})

		assert.Error(t, err)
		assert.Empty(t, invalidator.workflowIDs)
	})
}
