package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"voyago/config"
	"voyago/internal/domain"
	"voyago/internal/models"
	"voyago/internal/repository"
	"voyago/internal/service"
	"voyago/internal/ws"
	"voyago/pkg/pinetwork"
)

type adminFixture struct {
	db     *gorm.DB
	router *gin.Engine
	seq    int
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	db := newHandlerDB(t)
	provider := newFakeProvider(t)

	cfg := &config.Config{}
	cfg.JWT.AccessSecret = "admin-test-secret"
	cfg.JWT.RefreshSecret = "admin-test-refresh"
	cfg.JWT.AccessExpiry = time.Hour
	cfg.JWT.RefreshExpiry = 24 * time.Hour
	cfg.JWT.Issuer = "voyago"
	cfg.Payment.ExpiryWindow = 30 * time.Minute

	users := repository.NewUserRepository(db)
	pi := pinetwork.NewClient(provider.srv.URL, "test-key", 5*time.Second, nil)
	notifs := service.NewNotificationService(repository.NewNotificationRepository(db), users, nil)
	paySvc := service.NewPaymentService(
		db,
		cfg,
		pi,
		repository.NewPaymentRepository(db),
		repository.NewBookingRepository(db),
		users,
		repository.NewRewardRepository(db),
		repository.NewAuditLogRepository(db),
		repository.NewSecurityLogRepository(db),
		notifs,
		ws.NewHub(),
		nil,
		zap.NewNop(),
	)
	h := NewAdminHandler(
		repository.NewAdminRepository(db),
		users,
		repository.NewRewardRepository(db),
		repository.NewSecurityLogRepository(db),
		repository.NewAuditLogRepository(db),
		repository.NewSettingRepository(db),
		paySvc,
		service.NewAuthService(cfg, users, pi),
	)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/admin/login", h.AdminLogin)
	r.GET("/admin/dashboard", h.Dashboard)
	r.GET("/admin/users", h.ListUsers)
	r.GET("/admin/users/:id", h.GetUser)
	r.PATCH("/admin/users/:id", h.UpdateUser)
	r.POST("/admin/users/:id/rewards", h.AdjustReward)
	r.POST("/admin/payments/:id/refund", h.RefundPayment)
	r.GET("/admin/settings", h.GetSettings)
	r.PUT("/admin/settings", h.UpdateSettings)

	return &adminFixture{db: db, router: r}
}

func (f *adminFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *adminFixture) seedAccount(t *testing.T, role, password string) *models.User {
	t.Helper()
	f.seq++
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{
		Username:     fmt.Sprintf("staff%d", f.seq),
		Email:        fmt.Sprintf("staff%d@example.com", f.seq),
		PasswordHash: string(hash),
		Role:         role,
		Tier:         domain.TierFree,
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func TestAdminLoginRejectsNonAdmin(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "hunter22")

	w := f.do(t, http.MethodPost, "/admin/login",
		fmt.Sprintf(`{"email":%q,"password":"hunter22"}`, u.Email))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "admin access required")
}

func TestAdminLoginSucceeds(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleAdmin, "hunter22")

	w := f.do(t, http.MethodPost, "/admin/login",
		fmt.Sprintf(`{"email":%q,"password":"hunter22"}`, u.Email))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")
	assert.Contains(t, w.Body.String(), "refresh_token")
}

func TestAdminLoginBadPassword(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleAdmin, "hunter22")

	w := f.do(t, http.MethodPost, "/admin/login",
		fmt.Sprintf(`{"email":%q,"password":"wrong"}`, u.Email))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdjustRewardCredits(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "pw")

	w := f.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/rewards", u.ID),
		`{"amount":"5","reference":"promo-launch-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var fresh models.User
	require.NoError(t, f.db.First(&fresh, u.ID).Error)
	assert.True(t, fresh.RewardBalance.Equal(decimal.NewFromInt(5)),
		"balance %s", fresh.RewardBalance)

	var row models.RewardTransaction
	require.NoError(t, f.db.Where("user_id = ?", u.ID).First(&row).Error)
	assert.Equal(t, domain.RewardTypeAdjustment, row.Type)
	assert.Equal(t, "promo-launch-1", row.Reference)
}

func TestAdjustRewardReplayRejected(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "pw")
	body := `{"amount":"5","reference":"promo-launch-2"}`

	first := f.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/rewards", u.ID), body)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/rewards", u.ID), body)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "reference already used")

	// The retry must not pay twice, and the rejected write must leave
	// no ledger row behind.
	var fresh models.User
	require.NoError(t, f.db.First(&fresh, u.ID).Error)
	assert.True(t, fresh.RewardBalance.Equal(decimal.NewFromInt(5)),
		"balance %s", fresh.RewardBalance)
	var rows int64
	require.NoError(t, f.db.Model(&models.RewardTransaction{}).
		Where("reference = ?", "promo-launch-2").Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	// The unique index guards across users too: the same reference
	// cannot pay a different account either.
	other := f.seedAccount(t, domain.RoleUser, "pw")
	third := f.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/rewards", other.ID), body)
	assert.Equal(t, http.StatusConflict, third.Code)
}

func TestAdjustRewardDebitNeedsFunds(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "pw")

	w := f.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/rewards", u.ID),
		`{"amount":"-1","reference":"clawback-1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds reward balance")
}

func TestAdjustRewardRejectsZeroAndGarbage(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "pw")

	for _, amount := range []string{"0", "ten"} {
		w := f.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/rewards", u.ID),
			fmt.Sprintf(`{"amount":%q,"reference":"bad-%s"}`, amount, amount))
		assert.Equal(t, http.StatusBadRequest, w.Code, "amount %q", amount)
	}
}

func TestUpdateUserValidatesRoleAndTier(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "pw")

	w := f.do(t, http.MethodPatch, fmt.Sprintf("/admin/users/%d", u.ID), `{"role":"OVERLORD"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid role")

	w = f.do(t, http.MethodPatch, fmt.Sprintf("/admin/users/%d", u.ID), `{"tier":"DIAMOND"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid tier")

	// Fields outside the allowlist are dropped, not applied.
	w = f.do(t, http.MethodPatch, fmt.Sprintf("/admin/users/%d", u.ID), `{"reward_balance":"9999"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no valid fields")
}

func TestUpdateUserPromotes(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "pw")

	w := f.do(t, http.MethodPatch, fmt.Sprintf("/admin/users/%d", u.ID),
		fmt.Sprintf(`{"role":%q,"tier":%q}`, domain.RoleAdmin, domain.TierPremium))
	require.Equal(t, http.StatusOK, w.Code)

	var fresh models.User
	require.NoError(t, f.db.First(&fresh, u.ID).Error)
	assert.Equal(t, domain.RoleAdmin, fresh.Role)
	assert.Equal(t, domain.TierPremium, fresh.Tier)
}

func TestUpdateUserDuplicateEmailConflicts(t *testing.T) {
	f := newAdminFixture(t)
	a := f.seedAccount(t, domain.RoleUser, "pw")
	b := f.seedAccount(t, domain.RoleUser, "pw")

	w := f.do(t, http.MethodPatch, fmt.Sprintf("/admin/users/%d", b.ID),
		fmt.Sprintf(`{"email":%q}`, a.Email))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already taken")
}

func TestAdminRefundRequiresCompletedPayment(t *testing.T) {
	f := newAdminFixture(t)
	u := f.seedAccount(t, domain.RoleUser, "pw")
	p := &models.Payment{
		UserID:   u.ID,
		Amount:   decimal.NewFromInt(10),
		Currency: "PI",
		Provider: domain.ProviderPiNetwork,
		Status:   domain.PaymentStatusPending,
	}
	require.NoError(t, f.db.Create(p).Error)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/admin/payments/%d/refund", p.ID),
		`{"reason":"customer complaint"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not completed")
}

func TestAdminRefundUnknownPayment(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(t, http.MethodPost, "/admin/payments/99999/refund", `{"reason":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminSettingsRoundTrip(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(t, http.MethodPut, "/admin/settings",
		fmt.Sprintf(`{"settings":{%q:"2.5"}}`, domain.SettingReferralBonusReferrer))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/admin/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.SettingReferralBonusReferrer)
	assert.Contains(t, w.Body.String(), "2.5")
}

func TestAdminDashboardCountsEntities(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAccount(t, domain.RoleUser, "pw")
	f.seedAccount(t, domain.RoleAdmin, "pw")

	w := f.do(t, http.MethodGet, "/admin/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_users":2`)
}
