package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"voyago/internal/cache"
	"voyago/internal/models"
	"voyago/internal/repository"
	"voyago/pkg/cloudinary"
)

type HotelHandler struct {
	repo  *repository.HotelRepository
	cache *cache.Cache
	cloud cloudinary.Client
}

func NewHotelHandler(repo *repository.HotelRepository, cache *cache.Cache, cloud cloudinary.Client) *HotelHandler {
	return &HotelHandler{repo: repo, cache: cache, cloud: cloud}
}

// pagination reads page and page_size with sane bounds. Shared by every
// catalog listing.
func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// slugify derives a URL slug from a display name.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, s)
	return strings.Trim(s, "-")
}

type hotelListPage struct {
	Hotels []models.Hotel `json:"hotels"`
	Total  int64          `json:"total"`
}

// List returns active hotels, cached per city and page.
func (h *HotelHandler) List(c *gin.Context) {
	city := c.Query("city")
	page, limit := pagination(c)
	ctx := c.Request.Context()

	key := cache.HotelListKey(city, page, limit)
	var out hotelListPage
	if !h.cache.GetJSON(ctx, key, &out) {
		list, total, err := h.repo.List(city, page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
			return
		}
		out = hotelListPage{Hotels: list, Total: total}
		h.cache.SetJSON(ctx, key, out, cache.ListTTL)
	}
	c.JSON(http.StatusOK, gin.H{
		"hotels":    out.Hotels,
		"total":     out.Total,
		"page":      page,
		"page_size": limit,
	})
}

// Get returns one active hotel with its images.
func (h *HotelHandler) Get(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	ctx := c.Request.Context()

	key := cache.HotelKey(uint(id))
	var hotel models.Hotel
	if !h.cache.GetJSON(ctx, key, &hotel) {
		found, err := h.repo.GetByID(uint(id))
		if err != nil || !found.IsActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "hotel not found"})
			return
		}
		hotel = *found
		h.cache.SetJSON(ctx, key, hotel, cache.DetailTTL)
	}
	c.JSON(http.StatusOK, hotel)
}

type CreateHotelRequest struct {
	Name          string   `json:"name" binding:"required"`
	Slug          string   `json:"slug"`
	Description   string   `json:"description"`
	City          string   `json:"city" binding:"required"`
	Country       string   `json:"country" binding:"required"`
	Address       string   `json:"address"`
	PricePerNight string   `json:"price_per_night" binding:"required"`
	Currency      string   `json:"currency"`
	Amenities     []string `json:"amenities"`
	MaxGuests     int      `json:"max_guests"`
	IsActive      *bool    `json:"is_active"`
}

// Create is the admin path for adding inventory.
func (h *HotelHandler) Create(c *gin.Context) {
	var req CreateHotelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.PricePerNight)
	if err != nil || price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price_per_night"})
		return
	}
	if req.Slug == "" {
		req.Slug = slugify(req.Name)
	}
	hotel := &models.Hotel{
		Name:          req.Name,
		Slug:          req.Slug,
		Description:   req.Description,
		City:          req.City,
		Country:       req.Country,
		Address:       req.Address,
		PricePerNight: price,
		Currency:      req.Currency,
		MaxGuests:     req.MaxGuests,
		IsActive:      true,
	}
	if len(req.Amenities) > 0 {
		raw, _ := json.Marshal(req.Amenities)
		hotel.Amenities = string(raw)
	}
	if err := h.repo.Create(hotel); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	if req.IsActive != nil && !*req.IsActive {
		hotel.IsActive = false
		_ = h.repo.Update(hotel)
	}
	h.cache.InvalidatePrefix(c.Request.Context(), "hotels:")
	c.JSON(http.StatusCreated, hotel)
}

type UpdateHotelRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	City          *string  `json:"city"`
	Country       *string  `json:"country"`
	Address       *string  `json:"address"`
	PricePerNight *string  `json:"price_per_night"`
	Currency      *string  `json:"currency"`
	Amenities     []string `json:"amenities"`
	MaxGuests     *int     `json:"max_guests"`
	IsActive      *bool    `json:"is_active"`
}

func (h *HotelHandler) Update(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	hotel, err := h.repo.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "hotel not found"})
		return
	}
	var req UpdateHotelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		hotel.Name = *req.Name
	}
	if req.Description != nil {
		hotel.Description = *req.Description
	}
	if req.City != nil {
		hotel.City = *req.City
	}
	if req.Country != nil {
		hotel.Country = *req.Country
	}
	if req.Address != nil {
		hotel.Address = *req.Address
	}
	if req.PricePerNight != nil {
		price, err := decimal.NewFromString(*req.PricePerNight)
		if err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price_per_night"})
			return
		}
		hotel.PricePerNight = price
	}
	if req.Currency != nil {
		hotel.Currency = *req.Currency
	}
	if req.Amenities != nil {
		raw, _ := json.Marshal(req.Amenities)
		hotel.Amenities = string(raw)
	}
	if req.MaxGuests != nil {
		hotel.MaxGuests = *req.MaxGuests
	}
	if req.IsActive != nil {
		hotel.IsActive = *req.IsActive
	}
	if err := h.repo.Update(hotel); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.invalidate(c, hotel.ID)
	c.JSON(http.StatusOK, hotel)
}

func (h *HotelHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	if err := h.repo.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.invalidate(c, uint(id))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UploadImage attaches a photo to a hotel.
func (h *HotelHandler) UploadImage(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	hotel, err := h.repo.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "hotel not found"})
		return
	}
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads not configured"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	position, _ := strconv.Atoi(c.DefaultPostForm("position", "0"))

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()

	folder := "Voyago/hotels/" + strconv.FormatUint(uint64(hotel.ID), 10)
	publicID := "img_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	url, _, err := h.cloud.UploadImage(c.Request.Context(), f, folder, publicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	img := &models.HotelImage{
		HotelID:  hotel.ID,
		URL:      url,
		PublicID: folder + "/" + publicID,
		Position: position,
	}
	if err := h.repo.AddImage(img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	h.invalidate(c, hotel.ID)
	c.JSON(http.StatusCreated, img)
}

func (h *HotelHandler) DeleteImage(c *gin.Context) {
	hotelID, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	imageID, _ := strconv.ParseUint(c.Param("imageId"), 10, 64)
	img, err := h.repo.GetImage(uint(hotelID), uint(imageID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	if h.cloud != nil && img.PublicID != "" {
		// Best effort, the DB row is the source of truth.
		_ = h.cloud.Delete(c.Request.Context(), img.PublicID)
	}
	if err := h.repo.DeleteImage(uint(hotelID), uint(imageID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.invalidate(c, uint(hotelID))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HotelHandler) invalidate(c *gin.Context, hotelID uint) {
	ctx := c.Request.Context()
	h.cache.Delete(ctx, cache.HotelKey(hotelID))
	h.cache.InvalidatePrefix(ctx, "hotels:")
}
