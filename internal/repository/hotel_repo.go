package repository

import (
	"voyago/internal/models"

	"gorm.io/gorm"
)

type HotelRepository struct {
	db *gorm.DB
}

func NewHotelRepository(db *gorm.DB) *HotelRepository {
	return &HotelRepository{db: db}
}

func (r *HotelRepository) Create(h *models.Hotel) error {
	return r.db.Create(h).Error
}

func (r *HotelRepository) GetByID(id uint) (*models.Hotel, error) {
	var h models.Hotel
	err := r.db.Preload("Images").First(&h, id).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HotelRepository) GetBySlug(slug string) (*models.Hotel, error) {
	var h models.Hotel
	err := r.db.Preload("Images").Where("slug = ?", slug).First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// List returns active hotels, optionally filtered by city, with pagination.
func (r *HotelRepository) List(city string, page, limit int) ([]models.Hotel, int64, error) {
	q := r.db.Model(&models.Hotel{}).Where("is_active = ?", true)
	if city != "" {
		q = q.Where("city = ?", city)
	}
	var total int64
	q.Count(&total)
	var list []models.Hotel
	err := q.Preload("Images").Order("rating DESC, id ASC").
		Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *HotelRepository) Update(h *models.Hotel) error {
	return r.db.Save(h).Error
}

func (r *HotelRepository) Delete(id uint) error {
	return r.db.Delete(&models.Hotel{}, id).Error
}

// SetRating stores the denormalized review aggregate.
func (r *HotelRepository) SetRating(hotelID uint, rating float64, reviewCount int64) error {
	return r.db.Model(&models.Hotel{}).Where("id = ?", hotelID).
		Updates(map[string]interface{}{"rating": rating, "review_count": reviewCount}).Error
}

func (r *HotelRepository) AddImage(img *models.HotelImage) error {
	return r.db.Create(img).Error
}

func (r *HotelRepository) GetImage(hotelID, imageID uint) (*models.HotelImage, error) {
	var img models.HotelImage
	err := r.db.Where("hotel_id = ?", hotelID).First(&img, imageID).Error
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *HotelRepository) DeleteImage(hotelID, imageID uint) error {
	return r.db.Where("hotel_id = ?", hotelID).Delete(&models.HotelImage{}, imageID).Error
}
