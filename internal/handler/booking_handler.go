package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"voyago/internal/middleware"
	"voyago/internal/service"
)

type BookingHandler struct {
	svc *service.BookingService
}

func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

type CreateBookingRequest struct {
	ItemType string `json:"item_type" binding:"required,oneof=hotel attraction restaurant"`
	ItemID   uint   `json:"item_id" binding:"required"`
	CheckIn  string `json:"check_in" binding:"required"`
	CheckOut string `json:"check_out"`
	Guests   int    `json:"guests"`
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (h *BookingHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	checkIn, err := parseDate(req.CheckIn)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid check_in"})
		return
	}
	checkOut, err := parseDate(req.CheckOut)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid check_out"})
		return
	}

	booking, fraudRes, err := h.svc.Create(userID, service.CreateBookingInput{
		ItemType: req.ItemType,
		ItemID:   req.ItemID,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   req.Guests,
	}, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch err {
		case service.ErrItemNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInvalidDates, service.ErrTooManyGuests:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case service.ErrBookingBlocked:
			c.JSON(http.StatusForbidden, gin.H{
				"error":       "booking blocked",
				"fraud_score": fraudRes.Score,
				"reasons":     fraudRes.Reasons,
			})
		default:
			log.Printf("[booking] create: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "booking failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *BookingHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)

	booking, err := h.svc.Get(userID, uint(id))
	if err != nil {
		// Ownership failures look identical to missing rows.
		if err == service.ErrNotYourBooking || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := pagination(c)

	list, total, err := h.svc.ListForUser(userID, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings":  list,
		"total":     total,
		"page":      page,
		"page_size": limit,
	})
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)

	booking, err := h.svc.Cancel(userID, uint(id), c.ClientIP())
	if err != nil {
		switch {
		case err == service.ErrNotYourBooking || errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		case err == service.ErrBookingPaid:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err == service.ErrActivePayment:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Printf("[booking] cancel %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		}
		return
	}
	c.JSON(http.StatusOK, booking)
}
