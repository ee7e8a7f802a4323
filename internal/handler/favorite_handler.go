package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voyago/internal/domain"
	"voyago/internal/middleware"
	"voyago/internal/repository"
)

type FavoriteHandler struct {
	repo        *repository.FavoriteRepository
	hotels      *repository.HotelRepository
	attractions *repository.AttractionRepository
	restaurants *repository.RestaurantRepository
}

func NewFavoriteHandler(
	repo *repository.FavoriteRepository,
	hotels *repository.HotelRepository,
	attractions *repository.AttractionRepository,
	restaurants *repository.RestaurantRepository,
) *FavoriteHandler {
	return &FavoriteHandler{repo: repo, hotels: hotels, attractions: attractions, restaurants: restaurants}
}

type FavoriteRequest struct {
	ItemType string `json:"item_type" binding:"required,oneof=hotel attraction restaurant"`
	ItemID   uint   `json:"item_id" binding:"required"`
}

// Toggle saves the item to the wishlist, or removes it when already
// saved. Responds with the resulting state.
func (h *FavoriteHandler) Toggle(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.itemExists(req.ItemType, req.ItemID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}

	saved, err := h.repo.IsFavorite(userID, req.ItemType, req.ItemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if saved {
		if err := h.repo.Remove(userID, req.ItemType, req.ItemID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"favorited": false})
		return
	}
	if err := h.repo.Add(userID, req.ItemType, req.ItemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add favorite"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": true})
}

func (h *FavoriteHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := pagination(c)
	list, total, err := h.repo.ListByUserID(userID, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	out := make([]gin.H, len(list))
	for i, f := range list {
		entry := gin.H{
			"id":         f.ID,
			"item_type":  f.ItemType,
			"item_id":    f.ItemID,
			"created_at": f.CreatedAt,
		}
		entry["item"] = h.itemSummary(f.ItemType, f.ItemID)
		out[i] = entry
	}
	c.JSON(http.StatusOK, gin.H{
		"favorites": out,
		"total":     total,
		"page":      page,
		"page_size": limit,
	})
}

func (h *FavoriteHandler) itemExists(itemType string, itemID uint) bool {
	switch itemType {
	case domain.ItemTypeHotel:
		item, err := h.hotels.GetByID(itemID)
		return err == nil && item.IsActive
	case domain.ItemTypeAttraction:
		item, err := h.attractions.GetByID(itemID)
		return err == nil && item.IsActive
	case domain.ItemTypeRestaurant:
		item, err := h.restaurants.GetByID(itemID)
		return err == nil && item.IsActive
	}
	return false
}

// itemSummary hydrates a wishlist row with display fields. Items that
// went inactive since saving come back nil.
func (h *FavoriteHandler) itemSummary(itemType string, itemID uint) gin.H {
	switch itemType {
	case domain.ItemTypeHotel:
		if item, err := h.hotels.GetByID(itemID); err == nil && item.IsActive {
			return gin.H{"name": item.Name, "city": item.City, "country": item.Country, "price_per_night": item.PricePerNight, "rating": item.Rating}
		}
	case domain.ItemTypeAttraction:
		if item, err := h.attractions.GetByID(itemID); err == nil && item.IsActive {
			return gin.H{"name": item.Name, "city": item.City, "country": item.Country, "ticket_price": item.TicketPrice, "category": item.Category}
		}
	case domain.ItemTypeRestaurant:
		if item, err := h.restaurants.GetByID(itemID); err == nil && item.IsActive {
			return gin.H{"name": item.Name, "city": item.City, "country": item.Country, "average_price": item.AveragePrice, "cuisine": item.Cuisine}
		}
	}
	return nil
}
