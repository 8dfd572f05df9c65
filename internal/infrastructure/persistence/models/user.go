package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserModel is the persistence model for the user account rows the billing
// subsystem adjusts. The CRUD side of user management lives elsewhere; this
// model only carries what balance accounting needs.
type UserModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Username  string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}
