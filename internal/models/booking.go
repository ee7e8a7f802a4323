package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Booking is a reservation against a bookable item. Bookings are never
// hard-deleted; state moves through status/payment_status only.
type Booking struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Reference string    `gorm:"uniqueIndex;size:64;not null" json:"reference"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ItemType  string    `gorm:"size:20;not null;index:idx_booking_item" json:"item_type"` // hotel | attraction | restaurant
	ItemID    uint      `gorm:"not null;index:idx_booking_item" json:"item_id"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	Guests    int       `gorm:"not null;default:1" json:"guests"`
	// Status: pending | confirmed | cancelled.
	Status string `gorm:"size:20;not null;index;default:'pending'" json:"status"`
	// PaymentStatus: unpaid | paid | failed | refunded.
	PaymentStatus string          `gorm:"size:20;not null;index;default:'unpaid'" json:"payment_status"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,7);not null" json:"total_amount"`
	Currency      string          `gorm:"size:8;default:'PI'" json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Booking) TableName() string {
	return "bookings"
}

// Nights returns the stay length for hotel bookings (minimum 1).
func (b *Booking) Nights() int {
	n := int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
	if n < 1 {
		return 1
	}
	return n
}
