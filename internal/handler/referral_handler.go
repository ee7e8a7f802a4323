package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"voyago/internal/middleware"
	"voyago/internal/service"
)

type ReferralHandler struct {
	svc *service.ReferralService
}

func NewReferralHandler(svc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{svc: svc}
}

// GetCode returns the caller's invite code, creating one on first call.
func (h *ReferralHandler) GetCode(c *gin.Context) {
	userID := middleware.GetUserID(c)
	rc, err := h.svc.MyCode(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get referral code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":       rc.Code,
		"is_active":  rc.IsActive,
		"created_at": rc.CreatedAt,
	})
}

type ClaimReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *ReferralHandler) Claim(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req ClaimReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code required"})
		return
	}
	ref, err := h.svc.Claim(userID, req.Code)
	if err != nil {
		switch err {
		case service.ErrInvalidReferralCode:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrOwnReferralCode:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case service.ErrAlreadyReferred:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Printf("[referral] claim: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"referral": ref})
}

// ListMine returns accounts recruited through the caller's code.
func (h *ReferralHandler) ListMine(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := pagination(c)

	referrals, total, err := h.svc.ListMine(userID, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list referrals"})
		return
	}
	out := make([]gin.H, 0, len(referrals))
	for _, ref := range referrals {
		username := ref.ReferredUser.Username
		if username == "" {
			username = ref.ReferredUser.Email
		}
		out = append(out, gin.H{
			"referred_user": gin.H{"username": username},
			"rewarded_at":   ref.RewardedAt,
			"created_at":    ref.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"referrals": out,
		"total":     total,
		"page":      page,
		"page_size": limit,
	})
}
