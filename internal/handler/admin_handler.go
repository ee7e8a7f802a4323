package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"voyago/internal/domain"
	"voyago/internal/repository"
	"voyago/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AdminHandler struct {
	admin    *repository.AdminRepository
	users    *repository.UserRepository
	rewards  *repository.RewardRepository
	security *repository.SecurityLogRepository
	audits   *repository.AuditLogRepository
	settings *repository.SettingRepository
	payments *service.PaymentService
	authSvc  *service.AuthService
}

func NewAdminHandler(
	admin *repository.AdminRepository,
	users *repository.UserRepository,
	rewards *repository.RewardRepository,
	security *repository.SecurityLogRepository,
	audits *repository.AuditLogRepository,
	settings *repository.SettingRepository,
	payments *service.PaymentService,
	authSvc *service.AuthService,
) *AdminHandler {
	return &AdminHandler{
		admin:    admin,
		users:    users,
		rewards:  rewards,
		security: security,
		audits:   audits,
		settings: settings,
		payments: payments,
		authSvc:  authSvc,
	}
}

// AdminLogin handles POST /admin/login — admin-only login.
func (h *AdminHandler) AdminLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, access, refresh, err := h.authSvc.Login(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if u.Role != domain.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          u,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Dashboard handles GET /admin/dashboard — overview stats.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.admin.GetDashboardStats()
	if err != nil {
		log.Printf("[admin] dashboard: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Analytics handles GET /admin/analytics?days=30.
func (h *AdminHandler) Analytics(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	signups, _ := h.admin.UserSignupsByDay(days)
	revenue, _ := h.admin.RevenueByDay(days)
	c.JSON(http.StatusOK, gin.H{
		"signups": signups,
		"revenue": revenue,
		"days":    days,
	})
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	search := c.Query("search")
	role := c.Query("role")
	page, limit := pagination(c)
	users, total, err := h.admin.ListUsers(search, role, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": total, "page": page, "page_size": limit})
}

// GetUser handles GET /admin/users/:id.
func (h *AdminHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	u, err := h.users.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateUser handles PATCH /admin/users/:id.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Only allow safe fields
	allowed := map[string]bool{"role": true, "tier": true, "username": true, "email": true}
	safe := make(map[string]interface{})
	for k, v := range updates {
		if allowed[k] {
			safe[k] = v
		}
	}
	if len(safe) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid fields to update"})
		return
	}
	if v, ok := safe["role"]; ok {
		if s, _ := v.(string); s != domain.RoleUser && s != domain.RoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
	}
	if v, ok := safe["tier"]; ok {
		s, _ := v.(string)
		if _, known := domain.TierQuotas[s]; !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier"})
			return
		}
	}
	if err := h.admin.UpdateUser(uint(id), safe); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AdjustRewardRequest credits or debits a user's reward balance outside
// the cashback flow. Reference doubles as the replay guard, so retried
// requests with the same reference are rejected instead of paid twice.
type AdjustRewardRequest struct {
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference" binding:"required,max=128"`
}

// AdjustReward handles POST /admin/users/:id/rewards.
func (h *AdminHandler) AdjustReward(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req AdjustRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if amount.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be non-zero"})
		return
	}

	u, err := h.users.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	if err := h.rewards.Adjust(u.ID, amount, domain.RewardTypeAdjustment, req.Reference); err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			c.JSON(http.StatusConflict, gin.H{"error": "reference already used"})
		case errors.Is(err, repository.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Printf("[admin] adjust reward user=%d: %v", u.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "adjustment failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "balance": u.RewardBalance.Add(amount)})
}

// ListPayments handles GET /admin/payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	status := c.Query("status")
	page, limit := pagination(c)
	list, total, err := h.admin.ListPayments(status, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "page_size": limit})
}

// RefundPayment handles POST /admin/payments/:id/refund. Caller zero
// skips the ownership check, so any user's payment can be refunded.
func (h *AdminHandler) RefundPayment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refund, err := h.payments.Refund(c.Request.Context(), 0, uint(id), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case err == service.ErrNotCompleted || err == service.ErrAlreadyRefunded || err == service.ErrPiNotLinked:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case isProviderError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider rejected the request"})
		default:
			log.Printf("[admin] refund %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed"})
		}
		return
	}
	c.JSON(http.StatusOK, refund)
}

// Reconcile handles POST /admin/reconcile — on-demand run of the sweep
// the scheduler does periodically.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	if err := h.payments.Reconcile(c.Request.Context()); err != nil {
		log.Printf("[admin] reconcile: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListBookings handles GET /admin/bookings.
func (h *AdminHandler) ListBookings(c *gin.Context) {
	status := c.Query("status")
	page, limit := pagination(c)
	list, total, err := h.admin.ListBookings(status, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "page_size": limit})
}

// ListSecurityLogs handles GET /admin/security-logs.
func (h *AdminHandler) ListSecurityLogs(c *gin.Context) {
	severity := c.Query("severity")
	page, limit := pagination(c)
	list, total, err := h.security.List(severity, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list security logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "page_size": limit})
}

// ListAuditLogs handles GET /admin/audit-logs.
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	action := c.Query("action")
	page, limit := pagination(c)
	list, total, err := h.audits.List(action, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "page_size": limit})
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// UpdateSettings handles PUT /admin/settings.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req struct {
		Settings map[string]string `json:"settings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for k, v := range req.Settings {
		if err := h.settings.Set(k, v); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update setting: " + k})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
