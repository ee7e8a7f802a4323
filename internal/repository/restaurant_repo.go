package repository

import (
	"voyago/internal/models"

	"gorm.io/gorm"
)

type RestaurantRepository struct {
	db *gorm.DB
}

func NewRestaurantRepository(db *gorm.DB) *RestaurantRepository {
	return &RestaurantRepository{db: db}
}

func (r *RestaurantRepository) Create(rest *models.Restaurant) error {
	return r.db.Create(rest).Error
}

func (r *RestaurantRepository) GetByID(id uint) (*models.Restaurant, error) {
	var rest models.Restaurant
	err := r.db.First(&rest, id).Error
	if err != nil {
		return nil, err
	}
	return &rest, nil
}

func (r *RestaurantRepository) List(city string, page, limit int) ([]models.Restaurant, int64, error) {
	q := r.db.Model(&models.Restaurant{}).Where("is_active = ?", true)
	if city != "" {
		q = q.Where("city = ?", city)
	}
	var total int64
	q.Count(&total)
	var list []models.Restaurant
	err := q.Order("id ASC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *RestaurantRepository) Update(rest *models.Restaurant) error {
	return r.db.Save(rest).Error
}

func (r *RestaurantRepository) Delete(id uint) error {
	return r.db.Delete(&models.Restaurant{}, id).Error
}
