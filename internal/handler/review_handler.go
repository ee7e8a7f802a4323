package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"voyago/internal/cache"
	"voyago/internal/middleware"
	"voyago/internal/models"
	"voyago/internal/repository"
)

type ReviewHandler struct {
	reviews *repository.ReviewRepository
	hotels  *repository.HotelRepository
	cache   *cache.Cache
}

func NewReviewHandler(reviews *repository.ReviewRepository, hotels *repository.HotelRepository, cache *cache.Cache) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, hotels: hotels, cache: cache}
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

// reviewItem is the public projection; the User relation itself is not
// serialized.
type reviewItem struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *ReviewHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	hotelID, _ := strconv.ParseUint(c.Param("id"), 10, 64)

	hotel, err := h.hotels.GetByID(uint(hotelID))
	if err != nil || !hotel.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "hotel not found"})
		return
	}

	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rev := &models.Review{
		UserID:  userID,
		HotelID: hotel.ID,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	if err := h.reviews.Create(rev); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "you have already reviewed this hotel"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	h.recomputeRating(c, hotel.ID)
	c.JSON(http.StatusCreated, rev)
}

func (h *ReviewHandler) ListByHotel(c *gin.Context) {
	hotelID, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	page, limit := pagination(c)

	list, total, err := h.reviews.ListByHotel(uint(hotelID), limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	items := make([]reviewItem, 0, len(list))
	for _, rev := range list {
		items = append(items, reviewItem{
			ID:        rev.ID,
			UserID:    rev.UserID,
			Username:  rev.User.Username,
			AvatarURL: rev.User.AvatarURL,
			Rating:    rev.Rating,
			Comment:   rev.Comment,
			CreatedAt: rev.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"reviews":   items,
		"total":     total,
		"page":      page,
		"page_size": limit,
	})
}

// recomputeRating refreshes the hotel's denormalized rating and drops its
// cache entries.
func (h *ReviewHandler) recomputeRating(c *gin.Context, hotelID uint) {
	avg, count, err := h.reviews.Aggregate(hotelID)
	if err != nil {
		log.Printf("[review] aggregate hotel %d: %v", hotelID, err)
		return
	}
	if err := h.hotels.SetRating(hotelID, avg, count); err != nil {
		log.Printf("[review] set rating hotel %d: %v", hotelID, err)
		return
	}
	ctx := c.Request.Context()
	h.cache.Delete(ctx, cache.HotelKey(hotelID))
	h.cache.InvalidatePrefix(ctx, "hotels:")
}
