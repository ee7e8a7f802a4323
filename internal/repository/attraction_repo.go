package repository

import (
	"voyago/internal/models"

	"gorm.io/gorm"
)

type AttractionRepository struct {
	db *gorm.DB
}

func NewAttractionRepository(db *gorm.DB) *AttractionRepository {
	return &AttractionRepository{db: db}
}

func (r *AttractionRepository) Create(a *models.Attraction) error {
	return r.db.Create(a).Error
}

func (r *AttractionRepository) GetByID(id uint) (*models.Attraction, error) {
	var a models.Attraction
	err := r.db.First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttractionRepository) List(city string, page, limit int) ([]models.Attraction, int64, error) {
	q := r.db.Model(&models.Attraction{}).Where("is_active = ?", true)
	if city != "" {
		q = q.Where("city = ?", city)
	}
	var total int64
	q.Count(&total)
	var list []models.Attraction
	err := q.Order("id ASC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *AttractionRepository) Update(a *models.Attraction) error {
	return r.db.Save(a).Error
}

func (r *AttractionRepository) Delete(id uint) error {
	return r.db.Delete(&models.Attraction{}, id).Error
}
