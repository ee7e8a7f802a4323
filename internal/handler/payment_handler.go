package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"voyago/internal/middleware"
	"voyago/internal/service"
	"voyago/pkg/pinetwork"
)

type PaymentHandler struct {
	svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type CreatePaymentRequest struct {
	BookingID uint `json:"booking_id" binding:"required"`
}

// ApprovePaymentRequest carries the provider payment identifier handed
// to the client by the Pi SDK's onReadyForServerApproval callback.
type ApprovePaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

type CompletePaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	TxID      string `json:"txid" binding:"required"`
}

type RefundPaymentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (h *PaymentHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, fraudRes, err := h.svc.Create(c.Request.Context(), userID, req.BookingID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch {
		case err == service.ErrNotYourBooking || errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		case err == service.ErrBookingNotPayable || err == service.ErrDoublePayment:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err == service.ErrPaymentBlocked:
			c.JSON(http.StatusForbidden, gin.H{
				"error":       "payment blocked",
				"fraud_score": fraudRes.Score,
				"reasons":     fraudRes.Reasons,
			})
		default:
			log.Printf("[payment] create: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "payment failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) Approve(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req ApprovePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.svc.Approve(c.Request.Context(), userID, req.PaymentID, c.ClientIP())
	if err != nil {
		switch {
		case err == service.ErrPiNotLinked:
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case err == service.ErrOwnershipMismatch:
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case err == service.ErrAlreadyProcessed:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err == service.ErrInvalidTransition:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err == service.ErrNoBookingReference:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err == service.ErrNoPendingPayment:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case err == service.ErrAmountMismatch:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case pinetwork.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found with provider"})
		case isProviderError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider rejected the request"})
		default:
			log.Printf("[payment] approve %s: %v", req.PaymentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "approval failed"})
		}
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) Complete(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CompletePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, _, err := h.svc.Complete(c.Request.Context(), req.PaymentID, req.TxID, userID)
	if err != nil {
		switch {
		case err == service.ErrNotYourPayment || errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case err == service.ErrNotVerified:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err == service.ErrAmountMismatch || err == service.ErrInvalidTransition:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case pinetwork.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found with provider"})
		case isProviderError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider rejected the request"})
		default:
			log.Printf("[payment] complete %s: %v", req.PaymentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "completion failed"})
		}
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)

	payment, err := h.svc.Cancel(c.Request.Context(), userID, uint(id))
	if err != nil {
		switch {
		case err == service.ErrNotYourPayment || errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case err == service.ErrInvalidTransition:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case isProviderError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider rejected the request"})
		default:
			log.Printf("[payment] cancel %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		}
		return
	}
	c.JSON(http.StatusOK, payment)
}

// Verify returns the provider and local views of a payment side by side.
func (h *PaymentHandler) Verify(c *gin.Context) {
	userID := middleware.GetUserID(c)
	piPaymentID := c.Param("payment_id")

	res, err := h.svc.Verify(c.Request.Context(), userID, piPaymentID)
	if err != nil {
		switch {
		case err == service.ErrNotYourPayment || errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case isProviderError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})
		default:
			log.Printf("[payment] verify %s: %v", piPaymentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
	var req RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refund, err := h.svc.Refund(c.Request.Context(), userID, uint(id), req.Reason)
	if err != nil {
		switch {
		case err == service.ErrNotYourPayment || errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case err == service.ErrNotCompleted || err == service.ErrAlreadyRefunded:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err == service.ErrPiNotLinked:
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case isProviderError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider rejected the request"})
		default:
			log.Printf("[payment] refund %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed"})
		}
		return
	}
	c.JSON(http.StatusOK, refund)
}

func (h *PaymentHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := pagination(c)

	list, err := h.svc.ListForUser(userID, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payments":  list,
		"page":      page,
		"page_size": limit,
	})
}

func (h *PaymentHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, _ := strconv.ParseUint(c.Param("id"), 10, 64)

	payment, err := h.svc.GetForUser(userID, uint(id))
	if err != nil {
		if err == service.ErrNotYourPayment || errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, payment)
}

// isProviderError reports whether err wraps a non-2xx platform response.
func isProviderError(err error) bool {
	var apiErr *pinetwork.APIError
	return errors.As(err, &apiErr)
}
