package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aistudio/backend/internal/domain/billing"
	"github.com/aistudio/backend/internal/domain/shared"
)

// defaultPolicyKeyPrefix namespaces policy cache keys in Redis
const defaultPolicyKeyPrefix = "billing:policy:"

// notFoundMarker is cached for workflows without a bound policy so repeated
// lookups for free workflows skip the database too.
const notFoundMarker = "__none__"

// RedisPolicyCache is a read-through cache in front of the policy
// repository. Policy lookups sit on the hot path of every billable request;
// the store is only consulted on a miss. Suitable for distributed
// deployments where multiple instances share one cache.
type RedisPolicyCache struct {
	client    *redis.Client
	store     billing.PolicyRepository
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisPolicyCache creates a policy cache backed by an existing Redis client
func NewRedisPolicyCache(client *redis.Client, store billing.PolicyRepository, ttl time.Duration, logger *zap.Logger) *RedisPolicyCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPolicyCache{
		client:    client,
		store:     store,
		keyPrefix: defaultPolicyKeyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

// FindByWorkflowID resolves a policy through the cache. Cache failures fall
// back to the store: a degraded Redis must never block billing.
func (c *RedisPolicyCache) FindByWorkflowID(ctx context.Context, workflowID string) (*billing.BillingPolicy, error) {
	key := c.keyPrefix + workflowID

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == notFoundMarker {
			return nil, shared.ErrNotFound
		}
		var policy billing.BillingPolicy
		if err := json.Unmarshal([]byte(cached), &policy); err == nil {
			return &policy, nil
		}
		// Corrupt entry, fall through to the store and rewrite it
		c.logger.Warn("corrupt policy cache entry", zap.String("workflow_id", workflowID))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("policy cache read failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}

	policy, err := c.store.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			c.set(ctx, key, notFoundMarker)
		}
		return nil, err
	}

	if encoded, err := json.Marshal(policy); err == nil {
		c.set(ctx, key, string(encoded))
	}
	return policy, nil
}

// Invalidate drops the cached entry for a workflow after a policy change
func (c *RedisPolicyCache) Invalidate(ctx context.Context, workflowID string) {
	if err := c.client.Del(ctx, c.keyPrefix+workflowID).Err(); err != nil {
		c.logger.Warn("policy cache invalidation failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

func (c *RedisPolicyCache) set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("policy cache write failed", zap.String("key", key), zap.Error(err))
	}
}
