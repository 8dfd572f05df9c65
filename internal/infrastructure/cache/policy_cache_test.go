package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aistudio/backend/internal/domain/billing"
	"github.com/aistudio/backend/internal/domain/shared"
)

// stubPolicyStore counts lookups so tests can assert cache hits
type stubPolicyStore struct {
	billing.PolicyRepository
	policies map[string]*billing.BillingPolicy
	lookups  int
}

func (s *stubPolicyStore) FindByWorkflowID(_ context.Context, workflowID string) (*billing.BillingPolicy, error) {
	s.lookups++
	policy, ok := s.policies[workflowID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return policy, nil
}

func newCacheFixture(t *testing.T) (*RedisPolicyCache, *stubPolicyStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	policy, err := billing.NewBillingPolicy("Copywriting", "wf-1", decimal.NewFromInt(10), billing.MeteringUnitPerCharacter, 100)
	require.NoError(t, err)

	store := &stubPolicyStore{policies: map[string]*billing.BillingPolicy{"wf-1": policy}}
	return NewRedisPolicyCache(client, store, time.Minute, zap.NewNop()), store, server
}

func TestRedisPolicyCache_FindByWorkflowID(t *testing.T) {
	ctx := context.Background()

	t.Run("second lookup is served from the cache", func(t *testing.T) {
		cache, store, _ := newCacheFixture(t)

		first, err := cache.FindByWorkflowID(ctx, "wf-1")
		require.NoError(t, err)
		second, err := cache.FindByWorkflowID(ctx, "wf-1")
		require.NoError(t, err)

		assert.Equal(t, first.WorkflowID, second.WorkflowID)
		assert.True(t, first.UnitPrice.Equal(second.UnitPrice))
		assert.Equal(t, 1, store.lookups)
	})

	t.Run("free workflow is negatively cached", func(t *testing.T) {
		cache, store, _ := newCacheFixture(t)

		_, err := cache.FindByWorkflowID(ctx, "wf-free")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = cache.FindByWorkflowID(ctx, "wf-free")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		assert.Equal(t, 1, store.lookups, "the miss must be cached too")
	})

	t.Run("corrupt cache entry falls back to the store", func(t *testing.T) {
		cache, store, server := newCacheFixture(t)
		require.NoError(t, server.Set(defaultPolicyKeyPrefix+"wf-1", "{not json"))

		policy, err := cache.FindByWorkflowID(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", policy.WorkflowID)
		assert.Equal(t, 1, store.lookups)
	})

	t.Run("degraded redis never blocks billing", func(t *testing.T) {
		cache, store, server := newCacheFixture(t)
		server.Close()

		policy, err := cache.FindByWorkflowID(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", policy.WorkflowID)
		assert.Equal(t, 1, store.lookups)
	})
}

func TestRedisPolicyCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache, store, _ := newCacheFixture(t)

	_, err := cache.FindByWorkflowID(ctx, "wf-1")
	require.NoError(t, err)

	cache.Invalidate(ctx, "wf-1")

	_, err = cache.FindByWorkflowID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.lookups, "invalidation must force a fresh read")
}
