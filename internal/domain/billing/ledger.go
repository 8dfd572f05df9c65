package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aistudio/backend/internal/domain/shared"
)

// LedgerEntryType classifies a balance adjustment
type LedgerEntryType string

const (
	LedgerEntryTypeConsumption LedgerEntryType = "consumption" // Metered deduction, negative delta
	LedgerEntryTypeRecharge    LedgerEntryType = "recharge"    // Manual credit, positive delta
)

// LedgerEntry is the immutable record of one balance adjustment. Entries are
// append-only; they are never updated or deleted.
type LedgerEntry struct {
	shared.BaseEntity
	UserID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Delta       decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	Type        LedgerEntryType `gorm:"type:varchar(20);not null"`
	WorkflowID  string          `gorm:"type:varchar(100);index"`
	Description string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// NewConsumptionEntry records a metered deduction of cost points. The stored
// delta is negative: consumption always reduces the balance.
func NewConsumptionEntry(userID uuid.UUID, workflowID string, cost decimal.Decimal, description string) (*LedgerEntry, error) {
	if cost.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Consumption cost must be positive")
	}
	return &LedgerEntry{
		BaseEntity:  shared.NewBaseEntity(),
		UserID:      userID,
		Delta:       cost.Neg(),
		Type:        LedgerEntryTypeConsumption,
		WorkflowID:  workflowID,
		Description: description,
	}, nil
}

// NewRechargeEntry records a manual balance credit
func NewRechargeEntry(userID uuid.UUID, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Recharge amount must be positive")
	}
	return &LedgerEntry{
		BaseEntity:  shared.NewBaseEntity(),
		UserID:      userID,
		Delta:       amount,
		Type:        LedgerEntryTypeRecharge,
		Description: description,
	}, nil
}
