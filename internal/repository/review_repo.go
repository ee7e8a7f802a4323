package repository

import (
	"voyago/internal/models"

	"gorm.io/gorm"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(rev *models.Review) error {
	return r.db.Create(rev).Error
}

func (r *ReviewRepository) GetByUserAndHotel(userID, hotelID uint) (*models.Review, error) {
	var rev models.Review
	err := r.db.Where("user_id = ? AND hotel_id = ?", userID, hotelID).First(&rev).Error
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *ReviewRepository) ListByHotel(hotelID uint, limit, offset int) ([]models.Review, int64, error) {
	q := r.db.Model(&models.Review{}).Where("hotel_id = ?", hotelID)
	var total int64
	q.Count(&total)
	var list []models.Review
	err := q.Preload("User").Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// Aggregate returns the average rating and review count for a hotel.
func (r *ReviewRepository) Aggregate(hotelID uint) (float64, int64, error) {
	var row struct {
		Avg   float64
		Count int64
	}
	err := r.db.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) as avg, COUNT(*) as count").
		Where("hotel_id = ?", hotelID).Scan(&row).Error
	return row.Avg, row.Count, err
}
