package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aistudio/backend/internal/domain/shared"
	"github.com/aistudio/backend/internal/infrastructure/persistence/models"
)

// GormBalanceRepository implements billing.BalanceRepository using GORM
type GormBalanceRepository struct {
	db *gorm.DB
}

// NewGormBalanceRepository creates a new GormBalanceRepository
func NewGormBalanceRepository(db *gorm.DB) *GormBalanceRepository {
	return &GormBalanceRepository{db: db}
}

// ConditionalAdjust applies delta to the user's balance as one conditional
// UPDATE. The non-negative guard lives in the WHERE clause, so the check and
// the mutation are a single indivisible statement: two processes racing on
// the same row cannot overdraw.
func (r *GormBalanceRepository) ConditionalAdjust(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, allowNegative bool) error {
	query := r.db.WithContext(ctx).
		Model(&models.UserModel{}).
		Where("id = ?", userID)

	if !allowNegative {
		query = query.Where("balance + ? >= 0", delta)
	}

	result := query.Updates(map[string]any{
		"balance":    gorm.Expr("balance + ?", delta),
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Nothing updated: either the user does not exist or the guard failed.
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.UserModel{}).
		Where("id = ?", userID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrInsufficientBalance
}

// Balance returns the user's current balance
func (r *GormBalanceRepository) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var user models.UserModel
	if err := r.db.WithContext(ctx).
		Select("id", "balance").
		Where("id = ?", userID).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, shared.ErrNotFound
		}
		return decimal.Zero, err
	}
	return user.Balance, nil
}
