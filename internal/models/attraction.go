package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Attraction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Slug        string          `gorm:"uniqueIndex;size:255;not null" json:"slug"`
	Description string          `gorm:"type:text" json:"description"`
	City        string          `gorm:"size:128;index;not null" json:"city"`
	Country     string          `gorm:"size:128;index;not null" json:"country"`
	Category    string          `gorm:"size:64;index" json:"category"` // museum, park, tour, ...
	TicketPrice decimal.Decimal `gorm:"type:decimal(20,7);not null" json:"ticket_price"`
	Currency    string          `gorm:"size:8;default:'PI'" json:"currency"`
	Hours       string          `gorm:"type:text" json:"hours"` // JSON opening hours
	IsActive    bool            `gorm:"default:true;index" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Attraction) TableName() string {
	return "attractions"
}
