package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"voyago/internal/domain"
)

type User struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Username     string  `gorm:"uniqueIndex;size:64;not null;default:''" json:"username"`
	Email        string  `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string  `gorm:"size:255" json:"-"`
	Role         string  `gorm:"size:20;not null;index;default:'USER'" json:"role"` // USER | ADMIN
	Tier         string  `gorm:"size:20;not null;default:'FREE'" json:"tier"`
	GoogleID     *string `gorm:"uniqueIndex;size:255" json:"-"` // nil for email signups (avoids duplicate '' on unique index)
	PiUID        *string `gorm:"uniqueIndex;size:64" json:"-"`  // linked Pi Network account; nil until linked
	PiUsername   string  `gorm:"size:64" json:"pi_username"`
	AvatarURL    string  `gorm:"size:512" json:"avatar_url"`
	// RewardBalance accumulates cashback from completed payments. Only
	// ever mutated with a server-side arithmetic update.
	RewardBalance   decimal.Decimal `gorm:"type:decimal(20,7);not null;default:0" json:"reward_balance"`
	FCMToken        string          `gorm:"size:512" json:"-"`
	EmailVerifiedAt *time.Time      `json:"email_verified_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }

// HasLinkedPi reports whether the account is bound to a Pi Network
// identity; payment approval requires it.
func (u *User) HasLinkedPi() bool { return u.PiUID != nil && *u.PiUID != "" }
