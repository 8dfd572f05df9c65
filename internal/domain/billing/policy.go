package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aistudio/backend/internal/domain/shared"
)

// BillingPolicy is the metering rule bound to one workflow. A workflow
// without an enabled policy is free.
type BillingPolicy struct {
	shared.BaseEntity
	Name       string          `gorm:"type:varchar(200);not null"`
	WorkflowID string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"`
	Unit       MeteringUnit    `gorm:"type:varchar(20);not null;default:'per_character'"`
	BatchSize  int             `gorm:"not null;default:1"`
	Enabled    bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (BillingPolicy) TableName() string {
	return "billing_policies"
}

// NewBillingPolicy creates a new billing policy for a workflow
func NewBillingPolicy(name, workflowID string, unitPrice decimal.Decimal, unit MeteringUnit, batchSize int) (*BillingPolicy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_POLICY_NAME", "Policy name cannot be empty")
	}
	if strings.TrimSpace(workflowID) == "" {
		return nil, shared.NewDomainError("INVALID_WORKFLOW_ID", "Workflow ID cannot be empty")
	}
	if !unit.IsValid() {
		return nil, shared.NewDomainError("INVALID_METERING_UNIT", "Unknown metering unit")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_UNIT_PRICE", "Unit price cannot be negative")
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	return &BillingPolicy{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		WorkflowID: workflowID,
		UnitPrice:  unitPrice,
		Unit:       unit,
		BatchSize:  batchSize,
		Enabled:    true,
	}, nil
}

// Update changes the policy's metering rule
func (p *BillingPolicy) Update(name string, unitPrice decimal.Decimal, unit MeteringUnit, batchSize int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_POLICY_NAME", "Policy name cannot be empty")
	}
	if !unit.IsValid() {
		return shared.NewDomainError("INVALID_METERING_UNIT", "Unknown metering unit")
	}
	if unitPrice.IsNegative() {
		return shared.NewDomainError("INVALID_UNIT_PRICE", "Unit price cannot be negative")
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	p.Name = name
	p.UnitPrice = unitPrice
	p.Unit = unit
	p.BatchSize = batchSize
	p.UpdatedAt = time.Now()
	return nil
}

// Enable turns the policy on
func (p *BillingPolicy) Enable() {
	p.Enabled = true
	p.UpdatedAt = time.Now()
}

// Disable turns the policy off, making the workflow free
func (p *BillingPolicy) Disable() {
	p.Enabled = false
	p.UpdatedAt = time.Now()
}

// Cost computes the quantized cost of the given usage under this policy
func (p *BillingPolicy) Cost(usage *int64) decimal.Decimal {
	if !p.Enabled {
		return decimal.Zero
	}
	return Cost(p.UnitPrice, p.Unit, p.BatchSize, usage)
}
