package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aistudio/backend/internal/domain/billing"
)

// GormLedgerRepository implements billing.LedgerRepository using GORM.
// Ledger entries are append-only; no update or delete is exposed.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Append inserts one immutable ledger entry
func (r *GormLedgerRepository) Append(ctx context.Context, entry *billing.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindByUserID lists a user's ledger entries, newest first
func (r *GormLedgerRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*billing.LedgerEntry, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&billing.LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*billing.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
