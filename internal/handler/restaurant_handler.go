package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"voyago/internal/cache"
	"voyago/internal/models"
	"voyago/internal/repository"
)

type RestaurantHandler struct {
	repo  *repository.RestaurantRepository
	cache *cache.Cache
}

func NewRestaurantHandler(repo *repository.RestaurantRepository, cache *cache.Cache) *RestaurantHandler {
	return &RestaurantHandler{repo: repo, cache: cache}
}

type restaurantListPage struct {
	Restaurants []models.Restaurant `json:"restaurants"`
	Total       int64               `json:"total"`
}

func (h *RestaurantHandler) List(c *gin.Context) {
	city := c.Query("city")
	page, limit := pagination(c)
	ctx := c.Request.Context()

	key := cache.RestaurantListKey(city, page, limit)
	var out restaurantListPage
	if !h.cache.GetJSON(ctx, key, &out) {
		list, total, err := h.repo.List(city, page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
			return
		}
		out = restaurantListPage{Restaurants: list, Total: total}
		h.cache.SetJSON(ctx, key, out, cache.ListTTL)
	}
	c.JSON(http.StatusOK, gin.H{
		"restaurants": out.Restaurants,
		"total":       out.Total,
		"page":        page,
		"page_size":   limit,
	})
}

func (h *RestaurantHandler) Get(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	ctx := c.Request.Context()

	key := cache.RestaurantKey(uint(id))
	var restaurant models.Restaurant
	if !h.cache.GetJSON(ctx, key, &restaurant) {
		found, err := h.repo.GetByID(uint(id))
		if err != nil || !found.IsActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "restaurant not found"})
			return
		}
		restaurant = *found
		h.cache.SetJSON(ctx, key, restaurant, cache.DetailTTL)
	}
	c.JSON(http.StatusOK, restaurant)
}

type CreateRestaurantRequest struct {
	Name         string `json:"name" binding:"required"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	City         string `json:"city" binding:"required"`
	Country      string `json:"country" binding:"required"`
	Cuisine      string `json:"cuisine"`
	AveragePrice string `json:"average_price" binding:"required"`
	Currency     string `json:"currency"`
}

func (h *RestaurantHandler) Create(c *gin.Context) {
	var req CreateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.AveragePrice)
	if err != nil || price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid average_price"})
		return
	}
	if req.Slug == "" {
		req.Slug = slugify(req.Name)
	}
	restaurant := &models.Restaurant{
		Name:         req.Name,
		Slug:         req.Slug,
		Description:  req.Description,
		City:         req.City,
		Country:      req.Country,
		Cuisine:      req.Cuisine,
		AveragePrice: price,
		Currency:     req.Currency,
		IsActive:     true,
	}
	if err := h.repo.Create(restaurant); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	h.cache.InvalidatePrefix(c.Request.Context(), "restaurants:")
	c.JSON(http.StatusCreated, restaurant)
}

type UpdateRestaurantRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	City         *string `json:"city"`
	Country      *string `json:"country"`
	Cuisine      *string `json:"cuisine"`
	AveragePrice *string `json:"average_price"`
	Currency     *string `json:"currency"`
	IsActive     *bool   `json:"is_active"`
}

func (h *RestaurantHandler) Update(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	restaurant, err := h.repo.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "restaurant not found"})
		return
	}
	var req UpdateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		restaurant.Name = *req.Name
	}
	if req.Description != nil {
		restaurant.Description = *req.Description
	}
	if req.City != nil {
		restaurant.City = *req.City
	}
	if req.Country != nil {
		restaurant.Country = *req.Country
	}
	if req.Cuisine != nil {
		restaurant.Cuisine = *req.Cuisine
	}
	if req.AveragePrice != nil {
		price, err := decimal.NewFromString(*req.AveragePrice)
		if err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid average_price"})
			return
		}
		restaurant.AveragePrice = price
	}
	if req.Currency != nil {
		restaurant.Currency = *req.Currency
	}
	if req.IsActive != nil {
		restaurant.IsActive = *req.IsActive
	}
	if err := h.repo.Update(restaurant); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.invalidate(c, restaurant.ID)
	c.JSON(http.StatusOK, restaurant)
}

func (h *RestaurantHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	if err := h.repo.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.invalidate(c, uint(id))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *RestaurantHandler) invalidate(c *gin.Context, id uint) {
	ctx := c.Request.Context()
	h.cache.Delete(ctx, cache.RestaurantKey(id))
	h.cache.InvalidatePrefix(ctx, "restaurants:")
}
