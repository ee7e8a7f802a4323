package repository

import (
	"time"

	"voyago/internal/models"

	"gorm.io/gorm"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(b *models.Booking) error {
	return r.db.Create(b).Error
}

func (r *BookingRepository) GetByID(id uint) (*models.Booking, error) {
	var b models.Booking
	err := r.db.First(&b, id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) GetByReference(ref string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.Where("reference = ?", ref).First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) ListByUserID(userID uint, limit, offset int) ([]models.Booking, int64, error) {
	q := r.db.Model(&models.Booking{}).Where("user_id = ?", userID)
	var total int64
	q.Count(&total)
	var list []models.Booking
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *BookingRepository) Update(b *models.Booking) error {
	return r.db.Save(b).Error
}

// Fraud-signal counters. The scorer itself stays pure; these feed it.

func (r *BookingRepository) CountByUserSince(userID uint, since time.Time) (int64, error) {
	var c int64
	err := r.db.Model(&models.Booking{}).
		Where("user_id = ? AND created_at >= ?", userID, since).Count(&c).Error
	return c, err
}

func (r *BookingRepository) CountByUser(userID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.Booking{}).Where("user_id = ?", userID).Count(&c).Error
	return c, err
}

func (r *BookingRepository) CountByUserForItem(userID uint, itemType string, itemID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.Booking{}).
		Where("user_id = ? AND item_type = ? AND item_id = ?", userID, itemType, itemID).
		Count(&c).Error
	return c, err
}
