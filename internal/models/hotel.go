package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Hotel struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Slug          string          `gorm:"uniqueIndex;size:255;not null" json:"slug"`
	Description   string          `gorm:"type:text" json:"description"`
	City          string          `gorm:"size:128;index;not null" json:"city"`
	Country       string          `gorm:"size:128;index;not null" json:"country"`
	Address       string          `gorm:"size:512" json:"address"`
	PricePerNight decimal.Decimal `gorm:"type:decimal(20,7);not null" json:"price_per_night"`
	Currency      string          `gorm:"size:8;default:'PI'" json:"currency"`
	Rating        float64         `gorm:"default:0" json:"rating"` // denormalized review average
	ReviewCount   int             `gorm:"default:0" json:"review_count"`
	Amenities     string          `gorm:"type:text" json:"amenities"` // JSON array
	MaxGuests     int             `gorm:"default:4" json:"max_guests"`
	IsActive      bool            `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`

	Images []HotelImage `gorm:"foreignKey:HotelID" json:"images,omitempty"`
}

func (Hotel) TableName() string {
	return "hotels"
}

// HotelImage references an uploaded photo; PublicID is the Cloudinary
// handle used for deletion.
type HotelImage struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	HotelID   uint           `gorm:"not null;index" json:"hotel_id"`
	URL       string         `gorm:"size:512;not null" json:"url"`
	PublicID  string         `gorm:"size:255" json:"-"`
	Position  int            `gorm:"default:0" json:"position"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (HotelImage) TableName() string {
	return "hotel_images"
}
