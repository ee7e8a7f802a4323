package repository

import (
	"errors"

	"voyago/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrInsufficientBalance is returned by Adjust when a debit would take
// the reward balance below zero.
var ErrInsufficientBalance = errors.New("adjustment exceeds reward balance")

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) ListByUserID(userID uint, limit, offset int) ([]models.RewardTransaction, error) {
	var list []models.RewardTransaction
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").
		Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// Adjust writes the ledger row and moves the balance in one transaction.
// The (type, reference) unique index turns a replayed reference into
// gorm.ErrDuplicatedKey before any balance change; debits are guarded
// server-side so a concurrent spend cannot overdraw.
func (r *RewardRepository) Adjust(userID uint, amount decimal.Decimal, txType, reference string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.RewardTransaction{
			UserID:    userID,
			Amount:    amount,
			Type:      txType,
			Reference: reference,
		}).Error; err != nil {
			return err
		}
		q := tx.Model(&models.User{}).Where("id = ?", userID)
		if amount.IsNegative() {
			q = q.Where("reward_balance >= ?", amount.Neg())
		}
		res := q.Update("reward_balance", gorm.Expr("reward_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}
		return nil
	})
}
