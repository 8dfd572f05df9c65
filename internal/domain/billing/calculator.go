package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// moneyScale is the fixed decimal scale for all monetary results. Costs are
// quantized to this scale with round-half-up so repeated calculations stay
// reproducible across processes.
const moneyScale = 6

// Cost converts a usage quantity into a monetary cost. It is a total
// function: malformed inputs degrade to a zero cost instead of failing, so a
// metering misconfiguration fails open.
//
// usage is interpreted according to the metering unit: a character count for
// per-character, a call count for per-call (defaulting to one call when nil
// or zero), and elapsed seconds for per-minute (always billed at least one
// minute). batchSize is the number of usage units that consume one unit
// price; values <= 0 are normalized to 1.
func Cost(unitPrice decimal.Decimal, unit MeteringUnit, batchSize int, usage *int64) decimal.Decimal {
	if unitPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	size := int64(batchSize)
	if size <= 0 {
		size = 1
	}

	switch unit {
	case MeteringUnitPerCall:
		calls := int64(1)
		if usage != nil && *usage != 0 {
			calls = *usage
		}
		if calls < 0 {
			return decimal.Zero
		}
		return quantize(unitPrice.Mul(decimal.NewFromInt(ceilDiv(calls, size))))

	case MeteringUnitPerCharacter:
		var count int64
		if usage != nil {
			count = *usage
		}
		if count <= 0 {
			return decimal.Zero
		}
		return quantize(unitPrice.Mul(decimal.NewFromInt(ceilDiv(count, size))))

	case MeteringUnitPerMinute:
		var seconds int64
		if usage != nil {
			seconds = *usage
		}
		minutes := int64(1)
		if seconds > 0 {
			minutes = ceilDiv(seconds, 60)
		}
		return quantize(unitPrice.Mul(decimal.NewFromInt(ceilDiv(minutes, size))))
	}

	// MeteringUnitNone or an unknown unit is not billed
	return decimal.Zero
}

// DescribeConsumption builds the human-readable deduction description stored
// on ledger entries, e.g.
// "workflow: Copywriting | billing: per character | rule: 10 per 100 characters | measured: 128 | deducted: 20 points"
func DescribeConsumption(policyName string, unitPrice decimal.Decimal, unit MeteringUnit, batchSize int, usage *int64, cost decimal.Decimal) string {
	if batchSize <= 0 {
		batchSize = 1
	}
	var measured int64
	if usage != nil {
		measured = *usage
	}
	return fmt.Sprintf(
		"workflow: %s | billing: %s | rule: %s per %d %s | measured: %d | deducted: %s points",
		policyName,
		unit.Label(),
		quantize(unitPrice).String(),
		batchSize,
		unit.ShortLabel(),
		measured,
		quantize(cost).String(),
	)
}

// ceilDiv returns ceil(n / d) for positive d
func ceilDiv(n, d int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// quantize fixes a monetary value to the shared scale using round-half-up
func quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyScale)
}
