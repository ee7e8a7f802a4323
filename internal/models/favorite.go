package models

import "time"

// Favorite is a wishlist entry pointing at a catalog item. Rows are
// hard-deleted on removal so the unique index never blocks a re-add.
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_fav_user_item,unique" json:"user_id"`
	ItemType  string    `gorm:"size:20;not null;index:idx_fav_user_item,unique" json:"item_type"`
	ItemID    uint      `gorm:"not null;index:idx_fav_user_item,unique" json:"item_id"`
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Favorite) TableName() string {
	return "favorites"
}
