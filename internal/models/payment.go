package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is one attempt to move money for a booking. The external
// provider identifier carries a unique index so a replayed callback or a
// racing second delivery hits a store-level conflict instead of creating
// a duplicate. Refunds are separate compensating rows pointing at the
// original via RefundOfID (unique: at most one refund per payment).
type Payment struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"not null;index" json:"user_id"`
	BookingID   *uint           `gorm:"index" json:"booking_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,7);not null" json:"amount"`
	Currency    string          `gorm:"size:8;default:'PI'" json:"currency"`
	Provider    string          `gorm:"size:50;not null;default:'pi_network'" json:"provider"`
	PiPaymentID *string         `gorm:"uniqueIndex;size:128" json:"pi_payment_id"` // nil until the provider payment is bound
	TxID        string          `gorm:"size:128" json:"txid"`
	// Status: pending | processing | completed | cancelled | failed | refunded.
	Status      string         `gorm:"size:20;not null;index" json:"status"`
	Metadata    string         `gorm:"type:text" json:"metadata"` // JSON
	RefundOfID  *uint          `gorm:"uniqueIndex" json:"refund_of_id"`
	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	User    User     `gorm:"foreignKey:UserID" json:"-"`
	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// ExternalID returns the provider payment identifier or "".
func (p *Payment) ExternalID() string {
	if p.PiPaymentID == nil {
		return ""
	}
	return *p.PiPaymentID
}
