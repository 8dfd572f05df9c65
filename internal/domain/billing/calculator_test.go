package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usagePtr(v int64) *int64 {
	return &v
}

func TestCost_PerCharacter(t *testing.T) {
	price := decimal.NewFromInt(10)

	t.Run("bills by ceiling batches", func(t *testing.T) {
		// 100 characters at 10 points per 100 characters is one batch.
		cost := Cost(price, MeteringUnitPerCharacter, 100, usagePtr(100))
		assert.True(t, decimal.NewFromInt(10).Equal(cost), "got %s", cost)

		// One character over the boundary starts a second batch.
		cost = Cost(price, MeteringUnitPerCharacter, 100, usagePtr(101))
		assert.True(t, decimal.NewFromInt(20).Equal(cost), "got %s", cost)
	})

	t.Run("zero or negative count is free", func(t *testing.T) {
		assert.True(t, Cost(price, MeteringUnitPerCharacter, 100, usagePtr(0)).IsZero())
		assert.True(t, Cost(price, MeteringUnitPerCharacter, 100, usagePtr(-5)).IsZero())
		assert.True(t, Cost(price, MeteringUnitPerCharacter, 100, nil).IsZero())
	})

	t.Run("is monotonic in usage", func(t *testing.T) {
		prev := decimal.Zero
		for _, n := range []int64{1, 50, 100, 101, 199, 200, 201, 1000} {
			cost := Cost(price, MeteringUnitPerCharacter, 100, usagePtr(n))
			assert.True(t, cost.GreaterThanOrEqual(prev), "cost decreased at usage %d", n)
			prev = cost
		}
	})

	t.Run("non-positive batch size counts as one", func(t *testing.T) {
		cost := Cost(price, MeteringUnitPerCharacter, 0, usagePtr(3))
		assert.True(t, decimal.NewFromInt(30).Equal(cost), "got %s", cost)

		cost = Cost(price, MeteringUnitPerCharacter, -4, usagePtr(3))
		assert.True(t, decimal.NewFromInt(30).Equal(cost), "got %s", cost)
	})
}

func TestCost_PerCall(t *testing.T) {
	price := decimal.NewFromInt(5)

	t.Run("defaults to one call", func(t *testing.T) {
		// Both a missing and a zero usage bill a single call.
		cost := Cost(price, MeteringUnitPerCall, 1, nil)
		assert.True(t, decimal.NewFromInt(5).Equal(cost), "got %s", cost)

		cost = Cost(price, MeteringUnitPerCall, 1, usagePtr(0))
		assert.True(t, decimal.NewFromInt(5).Equal(cost), "got %s", cost)
	})

	t.Run("bills call count", func(t *testing.T) {
		cost := Cost(price, MeteringUnitPerCall, 1, usagePtr(3))
		assert.True(t, decimal.NewFromInt(15).Equal(cost), "got %s", cost)
	})

	t.Run("negative call count is free", func(t *testing.T) {
		assert.True(t, Cost(price, MeteringUnitPerCall, 1, usagePtr(-1)).IsZero())
	})

	t.Run("batches calls", func(t *testing.T) {
		cost := Cost(price, MeteringUnitPerCall, 10, usagePtr(11))
		assert.True(t, decimal.NewFromInt(10).Equal(cost), "got %s", cost)
	})
}

func TestCost_PerMinute(t *testing.T) {
	price := decimal.NewFromInt(2)

	t.Run("bills at least one minute", func(t *testing.T) {
		for _, usage := range []*int64{nil, usagePtr(0), usagePtr(-30), usagePtr(1), usagePtr(59), usagePtr(60)} {
			cost := Cost(price, MeteringUnitPerMinute, 1, usage)
			assert.True(t, decimal.NewFromInt(2).Equal(cost), "got %s", cost)
		}
	})

	t.Run("rounds seconds up to whole minutes", func(t *testing.T) {
		cost := Cost(price, MeteringUnitPerMinute, 1, usagePtr(61))
		assert.True(t, decimal.NewFromInt(4).Equal(cost), "61s should bill 2 minutes, got %s", cost)

		cost = Cost(price, MeteringUnitPerMinute, 1, usagePtr(601))
		assert.True(t, decimal.NewFromInt(22).Equal(cost), "601s should bill 11 minutes, got %s", cost)
	})

	t.Run("batches minutes", func(t *testing.T) {
		// 11 minutes at 2 points per 5 minutes is 3 batches.
		cost := Cost(price, MeteringUnitPerMinute, 5, usagePtr(601))
		assert.True(t, decimal.NewFromInt(6).Equal(cost), "got %s", cost)
	})
}

func TestCost_Degenerate(t *testing.T) {
	t.Run("non-positive unit price is free", func(t *testing.T) {
		assert.True(t, Cost(decimal.Zero, MeteringUnitPerCall, 1, usagePtr(5)).IsZero())
		assert.True(t, Cost(decimal.NewFromInt(-1), MeteringUnitPerCall, 1, usagePtr(5)).IsZero())
	})

	t.Run("unmetered and unknown units are free", func(t *testing.T) {
		price := decimal.NewFromInt(10)
		assert.True(t, Cost(price, MeteringUnitNone, 1, usagePtr(5)).IsZero())
		assert.True(t, Cost(price, MeteringUnit("bogus"), 1, usagePtr(5)).IsZero())
	})

	t.Run("fractional prices quantize to six places", func(t *testing.T) {
		price, err := decimal.NewFromString("0.0000015")
		require.NoError(t, err)

		// One batch of 0.0000015 rounds half-up at the sixth place.
		cost := Cost(price, MeteringUnitPerCall, 1, usagePtr(1))
		expected, err := decimal.NewFromString("0.000002")
		require.NoError(t, err)
		assert.True(t, expected.Equal(cost), "got %s", cost)
	})
}

func TestDescribeConsumption(t *testing.T) {
	price := decimal.NewFromInt(10)
	cost := decimal.NewFromInt(20)

	desc := DescribeConsumption("Copywriting", price, MeteringUnitPerCharacter, 100, usagePtr(128), cost)
	assert.Equal(t,
		"workflow: Copywriting | billing: per character | rule: 10 per 100 characters | measured: 128 | deducted: 20 points",
		desc,
	)

	t.Run("nil usage reads as zero", func(t *testing.T) {
		desc := DescribeConsumption("Chat", price, MeteringUnitPerCall, 1, nil, price)
		assert.Contains(t, desc, "measured: 0")
	})
}
