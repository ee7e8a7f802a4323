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

type AttractionHandler struct {
	repo  *repository.AttractionRepository
	cache *cache.Cache
}

func NewAttractionHandler(repo *repository.AttractionRepository, cache *cache.Cache) *AttractionHandler {
	return &AttractionHandler{repo: repo, cache: cache}
}

type attractionListPage struct {
	Attractions []models.Attraction `json:"attractions"`
	Total       int64               `json:"total"`
}

func (h *AttractionHandler) List(c *gin.Context) {
	city := c.Query("city")
	page, limit := pagination(c)
	ctx := c.Request.Context()

	key := cache.AttractionListKey(city, page, limit)
	var out attractionListPage
	if !h.cache.GetJSON(ctx, key, &out) {
		list, total, err := h.repo.List(city, page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
			return
		}
		out = attractionListPage{Attractions: list, Total: total}
		h.cache.SetJSON(ctx, key, out, cache.ListTTL)
	}
	c.JSON(http.StatusOK, gin.H{
		"attractions": out.Attractions,
		"total":       out.Total,
		"page":        page,
		"page_size":   limit,
	})
}

func (h *AttractionHandler) Get(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	ctx := c.Request.Context()

	key := cache.AttractionKey(uint(id))
	var attraction models.Attraction
	if !h.cache.GetJSON(ctx, key, &attraction) {
		found, err := h.repo.GetByID(uint(id))
		if err != nil || !found.IsActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "attraction not found"})
			return
		}
		attraction = *found
		h.cache.SetJSON(ctx, key, attraction, cache.DetailTTL)
	}
	c.JSON(http.StatusOK, attraction)
}

type CreateAttractionRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	City        string `json:"city" binding:"required"`
	Country     string `json:"country" binding:"required"`
	Category    string `json:"category"`
	TicketPrice string `json:"ticket_price" binding:"required"`
	Currency    string `json:"currency"`
	Hours       string `json:"hours"`
}

func (h *AttractionHandler) Create(c *gin.Context) {
	var req CreateAttractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.TicketPrice)
	if err != nil || price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket_price"})
		return
	}
	if req.Slug == "" {
		req.Slug = slugify(req.Name)
	}
	attraction := &models.Attraction{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		City:        req.City,
		Country:     req.Country,
		Category:    req.Category,
		TicketPrice: price,
		Currency:    req.Currency,
		Hours:       req.Hours,
		IsActive:    true,
	}
	if err := h.repo.Create(attraction); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	h.cache.InvalidatePrefix(c.Request.Context(), "attractions:")
	c.JSON(http.StatusCreated, attraction)
}

type UpdateAttractionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	City        *string `json:"city"`
	Country     *string `json:"country"`
	Category    *string `json:"category"`
	TicketPrice *string `json:"ticket_price"`
	Currency    *string `json:"currency"`
	Hours       *string `json:"hours"`
	IsActive    *bool   `json:"is_active"`
}

func (h *AttractionHandler) Update(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	attraction, err := h.repo.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attraction not found"})
		return
	}
	var req UpdateAttractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		attraction.Name = *req.Name
	}
	if req.Description != nil {
		attraction.Description = *req.Description
	}
	if req.City != nil {
		attraction.City = *req.City
	}
	if req.Country != nil {
		attraction.Country = *req.Country
	}
	if req.Category != nil {
		attraction.Category = *req.Category
	}
	if req.TicketPrice != nil {
		price, err := decimal.NewFromString(*req.TicketPrice)
		if err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket_price"})
			return
		}
		attraction.TicketPrice = price
	}
	if req.Currency != nil {
		attraction.Currency = *req.Currency
	}
	if req.Hours != nil {
		attraction.Hours = *req.Hours
	}
	if req.IsActive != nil {
		attraction.IsActive = *req.IsActive
	}
	if err := h.repo.Update(attraction); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.invalidate(c, attraction.ID)
	c.JSON(http.StatusOK, attraction)
}

func (h *AttractionHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	if err := h.repo.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.invalidate(c, uint(id))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AttractionHandler) invalidate(c *gin.Context, id uint) {
	ctx := c.Request.Context()
	h.cache.Delete(ctx, cache.AttractionKey(id))
	h.cache.InvalidatePrefix(ctx, "attractions:")
}
