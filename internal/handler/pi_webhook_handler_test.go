package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"voyago/config"
	"voyago/internal/database"
	"voyago/internal/domain"
	"voyago/internal/models"
	"voyago/internal/repository"
	"voyago/internal/service"
	"voyago/internal/ws"
	"voyago/pkg/pinetwork"
)

const webhookSecret = "whsec_test"

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection so every query sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// fakeProvider serves just enough of the platform API for the webhook
// flow: fetch and acknowledge-complete.
type fakeProvider struct {
	srv      *httptest.Server
	payments map[string]*pinetwork.Payment
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{payments: map[string]*pinetwork.Payment{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		id := strings.TrimPrefix(r.URL.Path, "/v2/payments/")
		action := ""
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id, action = id[:i], id[i+1:]
		}
		p, ok := f.payments[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if action == "complete" {
			p.Status.DeveloperCompleted = true
		}
		_ = json.NewEncoder(w).Encode(p)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

type webhookFixture struct {
	db       *gorm.DB
	provider *fakeProvider
	router   *gin.Engine
	seq      int
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	db := newHandlerDB(t)
	provider := newFakeProvider(t)

	cfg := &config.Config{}
	cfg.Pi.WebhookSecret = webhookSecret
	cfg.Payment.ExpiryWindow = 30 * time.Minute

	users := repository.NewUserRepository(db)
	notifs := service.NewNotificationService(repository.NewNotificationRepository(db), users, nil)
	svc := service.NewPaymentService(
		db,
		cfg,
		pinetwork.NewClient(provider.srv.URL, "test-key", 5*time.Second, nil),
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

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/pi", NewPiWebhookHandler(svc, &cfg.Pi).Handle)

	return &webhookFixture{db: db, provider: provider, router: r}
}

// post delivers body with a valid signature unless sig overrides it.
func (f *webhookFixture) post(body []byte, ts, sig string) *httptest.ResponseRecorder {
	if ts == "" {
		ts = strconv.FormatInt(time.Now().Unix(), 10)
	}
	if sig == "" {
		sig = pinetwork.ComputeSignature(webhookSecret, ts, body)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/pi", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(pinetwork.HeaderTimestamp, ts)
	req.Header.Set(pinetwork.HeaderSignature, sig)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *webhookFixture) event(name, piPaymentID, txid string, amount decimal.Decimal) []byte {
	ev := pinetwork.WebhookEvent{Event: name}
	ev.Payment.Identifier = piPaymentID
	ev.Payment.Amount = amount
	if txid != "" {
		ev.Payment.Transaction = &pinetwork.Transaction{TxID: txid, Verified: true}
	}
	body, _ := json.Marshal(ev)
	return body
}

// seedProcessing creates a user, booking, and a processing payment bound
// to piPaymentID, with the matching provider-side payment verified.
func (f *webhookFixture) seedProcessing(t *testing.T, piPaymentID, amount string) (*models.User, *models.Booking, *models.Payment) {
	t.Helper()
	f.seq++
	piUID := fmt.Sprintf("pi-uid-%d", f.seq)
	u := &models.User{
		Username: fmt.Sprintf("traveler%d", f.seq),
		Email:    fmt.Sprintf("traveler%d@example.com", f.seq),
		Role:     domain.RoleUser,
		Tier:     domain.TierFree,
		PiUID:    &piUID,
	}
	require.NoError(t, f.db.Create(u).Error)

	amt := decimal.RequireFromString(amount)
	b := &models.Booking{
		Reference:     fmt.Sprintf("VG-HOOK%04d", f.seq),
		UserID:        u.ID,
		ItemType:      domain.ItemTypeHotel,
		ItemID:        1,
		CheckIn:       time.Now().Add(24 * time.Hour),
		CheckOut:      time.Now().Add(72 * time.Hour),
		Guests:        2,
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.BookingPaymentUnpaid,
		TotalAmount:   amt,
		Currency:      "PI",
	}
	require.NoError(t, f.db.Create(b).Error)

	p := &models.Payment{
		UserID:      u.ID,
		BookingID:   &b.ID,
		Amount:      amt,
		Currency:    "PI",
		Provider:    domain.ProviderPiNetwork,
		PiPaymentID: &piPaymentID,
		Status:      domain.PaymentStatusProcessing,
	}
	require.NoError(t, f.db.Create(p).Error)

	f.provider.payments[piPaymentID] = &pinetwork.Payment{
		Identifier: piPaymentID,
		UserUID:    piUID,
		Amount:     amt,
		Direction:  "user_to_app",
		Status:     pinetwork.PaymentFlags{DeveloperApproved: true, TransactionVerified: true},
		Transaction: &pinetwork.Transaction{
			TxID:     "tx-" + piPaymentID,
			Verified: true,
		},
	}
	return u, b, p
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := f.event(domain.EventPaymentCompleted, "pi_abc", "tx1", decimal.NewFromInt(10))

	w := f.post(body, "", "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid signature")
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	f := newWebhookFixture(t)
	body := f.event(domain.EventPaymentCompleted, "pi_abc", "tx1", decimal.NewFromInt(10))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := pinetwork.ComputeSignature(webhookSecret, ts, body)

	tampered := strings.Replace(string(body), "pi_abc", "pi_xyz", 1)
	w := f.post([]byte(tampered), ts, sig)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	f := newWebhookFixture(t)
	body := f.event(domain.EventPaymentCompleted, "pi_abc", "tx1", decimal.NewFromInt(10))
	ts := strconv.FormatInt(time.Now().Add(-pinetwork.ReplayWindow-time.Minute).Unix(), 10)

	w := f.post(body, ts, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "stale timestamp")
}

func TestWebhookRejectsUnknownEvent(t *testing.T) {
	f := newWebhookFixture(t)
	body := f.event("payment_teleported", "pi_abc", "", decimal.NewFromInt(10))

	w := f.post(body, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown event")
}

func TestWebhookRequiresIdentifier(t *testing.T) {
	f := newWebhookFixture(t)
	body := f.event(domain.EventPaymentCompleted, "", "tx1", decimal.NewFromInt(10))

	w := f.post(body, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcknowledgesUnknownPayment(t *testing.T) {
	f := newWebhookFixture(t)
	body := f.event(domain.EventPaymentCompleted, "pi_never_seen", "tx1", decimal.NewFromInt(10))

	// 200 so the provider stops retrying a payment that is not ours.
	w := f.post(body, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestWebhookCompletesPayment(t *testing.T) {
	f := newWebhookFixture(t)
	u, b, p := f.seedProcessing(t, "pi_done_1", "40")
	body := f.event(domain.EventPaymentCompleted, "pi_done_1", "tx-pi_done_1", decimal.RequireFromString("40"))

	w := f.post(body, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Payment
	require.NoError(t, f.db.First(&got, p.ID).Error)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	assert.Equal(t, "tx-pi_done_1", got.TxID)

	var booking models.Booking
	require.NoError(t, f.db.First(&booking, b.ID).Error)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, domain.BookingPaymentPaid, booking.PaymentStatus)

	// 2% of 40
	var fresh models.User
	require.NoError(t, f.db.First(&fresh, u.ID).Error)
	assert.True(t, fresh.RewardBalance.Equal(decimal.RequireFromString("0.8")),
		"reward balance %s", fresh.RewardBalance)
}

func TestWebhookReplayIsAcknowledgedOnce(t *testing.T) {
	f := newWebhookFixture(t)
	u, _, _ := f.seedProcessing(t, "pi_done_2", "10")
	body := f.event(domain.EventPaymentCompleted, "pi_done_2", "tx-pi_done_2", decimal.RequireFromString("10"))

	first := f.post(body, "", "")
	require.Equal(t, http.StatusOK, first.Code)

	second := f.post(body, "", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "already processed")

	// Cashback credited exactly once.
	var fresh models.User
	require.NoError(t, f.db.First(&fresh, u.ID).Error)
	assert.True(t, fresh.RewardBalance.Equal(decimal.RequireFromString("0.2")),
		"reward balance %s", fresh.RewardBalance)
	var ledger int64
	f.db.Model(&models.RewardTransaction{}).Where("user_id = ?", u.ID).Count(&ledger)
	assert.EqualValues(t, 1, ledger)
}

func TestWebhookCancelledEvent(t *testing.T) {
	f := newWebhookFixture(t)
	_, b, p := f.seedProcessing(t, "pi_gone_1", "25")
	body := f.event(domain.EventPaymentCancelled, "pi_gone_1", "", decimal.RequireFromString("25"))

	w := f.post(body, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Payment
	require.NoError(t, f.db.First(&got, p.ID).Error)
	assert.Equal(t, domain.PaymentStatusCancelled, got.Status)

	var booking models.Booking
	require.NoError(t, f.db.First(&booking, b.ID).Error)
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
	assert.Equal(t, domain.BookingPaymentUnpaid, booking.PaymentStatus)
}
