package models

import (
	"time"

	"gorm.io/gorm"
)

// Review is a user's rating of a hotel. One review per user per hotel;
// the hotel's denormalized rating is recomputed on write.
type Review struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index:idx_review_user_hotel,unique" json:"user_id"`
	HotelID   uint           `gorm:"not null;index:idx_review_user_hotel,unique;index" json:"hotel_id"`
	Rating    int            `gorm:"not null" json:"rating"` // 1..5
	Comment   string         `gorm:"type:text" json:"comment"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Review) TableName() string {
	return "reviews"
}
