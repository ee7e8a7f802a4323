package repository

import (
	"voyago/internal/models"

	"gorm.io/gorm"
)

type FavoriteRepository struct {
	db *gorm.DB
}

func NewFavoriteRepository(db *gorm.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

func (r *FavoriteRepository) Add(userID uint, itemType string, itemID uint) error {
	return r.db.Create(&models.Favorite{UserID: userID, ItemType: itemType, ItemID: itemID}).Error
}

func (r *FavoriteRepository) Remove(userID uint, itemType string, itemID uint) error {
	return r.db.Where("user_id = ? AND item_type = ? AND item_id = ?", userID, itemType, itemID).
		Delete(&models.Favorite{}).Error
}

func (r *FavoriteRepository) IsFavorite(userID uint, itemType string, itemID uint) (bool, error) {
	var c int64
	err := r.db.Model(&models.Favorite{}).
		Where("user_id = ? AND item_type = ? AND item_id = ?", userID, itemType, itemID).
		Count(&c).Error
	return c > 0, err
}

func (r *FavoriteRepository) ListByUserID(userID uint, limit, offset int) ([]models.Favorite, int64, error) {
	q := r.db.Model(&models.Favorite{}).Where("user_id = ?", userID)
	var total int64
	q.Count(&total)
	var list []models.Favorite
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// CountByItem reports how many users saved the given catalog item.
func (r *FavoriteRepository) CountByItem(itemType string, itemID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.Favorite{}).
		Where("item_type = ? AND item_id = ?", itemType, itemID).Count(&c).Error
	return c, err
}
