package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RewardTransaction is the append-only cashback ledger. The running
// balance lives on User.RewardBalance; rows here explain it. The
// (type, reference) unique index makes replayed writes fail in the
// store, whatever the caller checked first.
type RewardTransaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,7);not null" json:"amount"`                          // positive = credit
	Type      string          `gorm:"size:30;not null;uniqueIndex:idx_reward_type_reference" json:"type"` // CASHBACK, ADJUSTMENT, REFERRAL
	Reference string          `gorm:"size:128;uniqueIndex:idx_reward_type_reference" json:"reference"`    // e.g. provider payment id
	CreatedAt time.Time       `json:"created_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (RewardTransaction) TableName() string {
	return "reward_transactions"
}
