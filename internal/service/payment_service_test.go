package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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
	"voyago/internal/fraud"
	"voyago/internal/models"
	"voyago/internal/repository"
	"voyago/internal/ws"
	"voyago/pkg/pinetwork"
)

func newTestDB(t *testing.T) *gorm.DB {
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

// piFixture is an in-process stand-in for the Pi platform API backed by
// a plain map of provider payments.
type piFixture struct {
	srv      *httptest.Server
	payments map[string]*pinetwork.Payment
	created  []pinetwork.A2URequest

	approves  int
	completes int
	cancels   int

	failApprove  bool
	failComplete bool
	failCreate   bool
}

func newPiFixture(t *testing.T) *piFixture {
	t.Helper()
	f := &piFixture{payments: map[string]*pinetwork.Payment{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *piFixture) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	if r.Method == http.MethodPost && path == "/v2/payments" {
		var body struct {
			Payment pinetwork.A2URequest `json:"payment"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body.Payment)
		if f.failCreate {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		p := &pinetwork.Payment{
			Identifier: fmt.Sprintf("a2u_%d", len(f.created)),
			UserUID:    body.Payment.UID,
			Amount:     body.Payment.Amount,
			Memo:       body.Payment.Memo,
			Metadata:   body.Payment.Metadata,
			Direction:  "app_to_user",
			Transaction: &pinetwork.Transaction{
				TxID:     fmt.Sprintf("a2u-tx-%d", len(f.created)),
				Verified: true,
			},
		}
		f.payments[p.Identifier] = p
		_ = json.NewEncoder(w).Encode(p)
		return
	}

	id := strings.TrimPrefix(path, "/v2/payments/")
	action := ""
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id, action = id[:i], id[i+1:]
	}
	p, ok := f.payments[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"payment_not_found"}`))
		return
	}

	switch action {
	case "":
		// plain GET
	case "approve":
		if f.failApprove {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.approves++
		p.Status.DeveloperApproved = true
	case "complete":
		if f.failComplete {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.completes++
		p.Status.DeveloperCompleted = true
	case "cancel":
		f.cancels++
		p.Status.Cancelled = true
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

// add seeds a provider payment carrying the booking reference in its
// metadata, the way the app SDK creates them.
func (f *piFixture) add(id, userUID string, amount decimal.Decimal, bookingID uint) *pinetwork.Payment {
	p := &pinetwork.Payment{
		Identifier: id,
		UserUID:    userUID,
		Amount:     amount,
		Direction:  "user_to_app",
		Metadata:   map[string]any{"booking_id": int(bookingID)},
	}
	f.payments[id] = p
	return p
}

func (f *piFixture) markVerified(id, txid string) {
	f.payments[id].Transaction = &pinetwork.Transaction{TxID: txid, Verified: true}
}

type fakeEnqueuer struct {
	ids    []uint
	delays []time.Duration
}

func (f *fakeEnqueuer) EnqueuePaymentExpiry(paymentID uint, delay time.Duration) error {
	f.ids = append(f.ids, paymentID)
	f.delays = append(f.delays, delay)
	return nil
}

type paymentFixture struct {
	db       *gorm.DB
	pi       *piFixture
	svc      *PaymentService
	enq      *fakeEnqueuer
	payments *repository.PaymentRepository
	users    *repository.UserRepository
	seq      int
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := newTestDB(t)
	pi := newPiFixture(t)

	cfg := &config.Config{}
	cfg.Payment.ExpiryWindow = 30 * time.Minute

	users := repository.NewUserRepository(db)
	payments := repository.NewPaymentRepository(db)
	notifs := NewNotificationService(repository.NewNotificationRepository(db), users, nil)
	enq := &fakeEnqueuer{}

	svc := NewPaymentService(
		db,
		cfg,
		pinetwork.NewClient(pi.srv.URL, "test-key", 5*time.Second, nil),
		payments,
		repository.NewBookingRepository(db),
		users,
		repository.NewRewardRepository(db),
		repository.NewAuditLogRepository(db),
		repository.NewSecurityLogRepository(db),
		notifs,
		ws.NewHub(),
		enq,
		zap.NewNop(),
	)
	return &paymentFixture{db: db, pi: pi, svc: svc, enq: enq, payments: payments, users: users}
}

func (f *paymentFixture) seedUser(t *testing.T, piUID string) *models.User {
	t.Helper()
	f.seq++
	u := &models.User{
		Username: fmt.Sprintf("traveler%d", f.seq),
		Email:    fmt.Sprintf("traveler%d@example.com", f.seq),
		Role:     domain.RoleUser,
		Tier:     domain.TierFree,
	}
	if piUID != "" {
		u.PiUID = &piUID
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *paymentFixture) seedBooking(t *testing.T, userID uint, amount string) *models.Booking {
	t.Helper()
	f.seq++
	b := &models.Booking{
		Reference:     fmt.Sprintf("VG-TEST%04d", f.seq),
		UserID:        userID,
		ItemType:      domain.ItemTypeHotel,
		ItemID:        1,
		CheckIn:       time.Now().Add(24 * time.Hour),
		CheckOut:      time.Now().Add(72 * time.Hour),
		Guests:        2,
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.BookingPaymentUnpaid,
		TotalAmount:   decimal.RequireFromString(amount),
		Currency:      "PI",
	}
	require.NoError(t, f.db.Create(b).Error)
	return b
}

// pendingPayment runs the real create flow.
func (f *paymentFixture) pendingPayment(t *testing.T, user *models.User, booking *models.Booking) *models.Payment {
	t.Helper()
	p, _, err := f.svc.Create(context.Background(), user.ID, booking.ID, "", "")
	require.NoError(t, err)
	return p
}

// processingPayment drives a payment through approve against the fake
// provider.
func (f *paymentFixture) processingPayment(t *testing.T, user *models.User, booking *models.Booking, piPaymentID string) *models.Payment {
	t.Helper()
	f.pendingPayment(t, user, booking)
	f.pi.add(piPaymentID, *user.PiUID, booking.TotalAmount, booking.ID)
	p, err := f.svc.Approve(context.Background(), user.ID, piPaymentID, "")
	require.NoError(t, err)
	return p
}

func (f *paymentFixture) reloadPayment(t *testing.T, id uint) *models.Payment {
	t.Helper()
	p, err := f.payments.GetByID(id)
	require.NoError(t, err)
	return p
}

func (f *paymentFixture) reloadBooking(t *testing.T, id uint) *models.Booking {
	t.Helper()
	var b models.Booking
	require.NoError(t, f.db.First(&b, id).Error)
	return &b
}

func (f *paymentFixture) reloadUser(t *testing.T, id uint) *models.User {
	t.Helper()
	u, err := f.users.GetByID(id)
	require.NoError(t, err)
	return u
}

func (f *paymentFixture) notificationCount(t *testing.T, userID uint, notifType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", userID, notifType).Count(&n).Error)
	return n
}

func TestCreatePayment(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")

	p, res, err := f.svc.Create(context.Background(), user.ID, booking.ID, "", "test-agent")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("100")), "amount = %s", p.Amount)
	assert.Equal(t, domain.ProviderPiNetwork, p.Provider)
	assert.Nil(t, p.PiPaymentID)
	assert.NotNil(t, res)
	assert.Equal(t, fraud.ActionAllow, res.Action)

	// Expiry scheduled for the checkout window.
	require.Len(t, f.enq.ids, 1)
	assert.Equal(t, p.ID, f.enq.ids[0])
	assert.Equal(t, 30*time.Minute, f.enq.delays[0])

	var audits int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).
		Where("action = ? AND user_id = ?", "payment.created", user.ID).Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

func TestCreatePaymentGuards(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	other := f.seedUser(t, "uid-2")
	booking := f.seedBooking(t, user.ID, "50")

	_, _, err := f.svc.Create(context.Background(), other.ID, booking.ID, "", "")
	assert.ErrorIs(t, err, ErrNotYourBooking)

	_, _, err = f.svc.Create(context.Background(), user.ID, 9999, "", "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// First payment opens, second is a double-pay.
	_, _, err = f.svc.Create(context.Background(), user.ID, booking.ID, "", "")
	require.NoError(t, err)
	_, _, err = f.svc.Create(context.Background(), user.ID, booking.ID, "", "")
	assert.ErrorIs(t, err, ErrDoublePayment)

	cancelled := f.seedBooking(t, user.ID, "50")
	require.NoError(t, f.db.Model(cancelled).Update("status", domain.BookingStatusCancelled).Error)
	_, _, err = f.svc.Create(context.Background(), user.ID, cancelled.ID, "", "")
	assert.ErrorIs(t, err, ErrBookingNotPayable)

	paid := f.seedBooking(t, user.ID, "50")
	require.NoError(t, f.db.Model(paid).Update("payment_status", domain.BookingPaymentPaid).Error)
	_, _, err = f.svc.Create(context.Background(), user.ID, paid.ID, "", "")
	assert.ErrorIs(t, err, ErrBookingNotPayable)
}

func TestCreatePaymentFraudBlock(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")

	// Burst of bookings from a brand new account on a fresh IP pushes
	// the score past the block threshold.
	for i := 0; i < 5; i++ {
		f.seedBooking(t, user.ID, "10")
	}
	booking := f.seedBooking(t, user.ID, "10")

	p, res, err := f.svc.Create(context.Background(), user.ID, booking.ID, "203.0.113.9", "")
	assert.ErrorIs(t, err, ErrPaymentBlocked)
	assert.Nil(t, p)
	require.NotNil(t, res)
	assert.Equal(t, fraud.ActionBlock, res.Action)
	assert.GreaterOrEqual(t, res.Score, fraud.BlockThreshold)
	assert.NotEmpty(t, res.Reasons)

	// Over the alert threshold the attempt lands in the security log.
	if res.Score >= fraud.SecurityLogThreshold {
		var n int64
		require.NoError(t, f.db.Model(&models.SecurityLog{}).
			Where("event = ?", "payment_fraud_score").Count(&n).Error)
		assert.EqualValues(t, 1, n)
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "blocked attempt must not create a payment")
}

func TestApprove(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.pendingPayment(t, user, booking)
	f.pi.add("pay_1", "uid-1", booking.TotalAmount, booking.ID)

	p, err := f.svc.Approve(context.Background(), user.ID, "pay_1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, p.Status)
	assert.Equal(t, "pay_1", p.ExternalID())
	assert.Equal(t, 1, f.pi.approves)

	// Approve is idempotent; the provider is not asked twice.
	again, err := f.svc.Approve(context.Background(), user.ID, "pay_1", "")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, domain.PaymentStatusProcessing, again.Status)
	assert.Equal(t, 1, f.pi.approves)
}

func TestApproveGuards(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.pendingPayment(t, user, booking)

	unlinked := f.seedUser(t, "")
	_, err := f.svc.Approve(context.Background(), unlinked.ID, "pay_1", "")
	assert.ErrorIs(t, err, ErrPiNotLinked)

	// Provider payment owned by a different Pi account.
	f.pi.add("pay_other", "someone-else", booking.TotalAmount, booking.ID)
	_, err = f.svc.Approve(context.Background(), user.ID, "pay_other", "")
	assert.ErrorIs(t, err, ErrOwnershipMismatch)
	var n int64
	require.NoError(t, f.db.Model(&models.SecurityLog{}).
		Where("event = ?", "payment_ownership_mismatch").Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// Amount drifted from the booking total.
	f.pi.add("pay_wrong_amount", "uid-1", decimal.RequireFromString("999"), booking.ID)
	_, err = f.svc.Approve(context.Background(), user.ID, "pay_wrong_amount", "")
	assert.ErrorIs(t, err, ErrAmountMismatch)

	// No booking reference in the provider metadata.
	noRef := f.pi.add("pay_no_ref", "uid-1", booking.TotalAmount, booking.ID)
	noRef.Metadata = map[string]any{}
	_, err = f.svc.Approve(context.Background(), user.ID, "pay_no_ref", "")
	assert.ErrorIs(t, err, ErrNoBookingReference)

	// Reference points at a booking with no open payment.
	f.pi.add("pay_stray", "uid-1", booking.TotalAmount, 4242)
	_, err = f.svc.Approve(context.Background(), user.ID, "pay_stray", "")
	assert.ErrorIs(t, err, ErrNoPendingPayment)

	// Unknown provider payment is a provider 404.
	_, err = f.svc.Approve(context.Background(), user.ID, "pay_missing", "")
	assert.True(t, pinetwork.IsNotFound(err), "expected provider 404, got %v", err)
}

func TestApproveResumesAfterProviderFailure(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	created := f.pendingPayment(t, user, booking)
	f.pi.add("pay_1", "uid-1", booking.TotalAmount, booking.ID)

	f.pi.failApprove = true
	_, err := f.svc.Approve(context.Background(), user.ID, "pay_1", "")
	require.Error(t, err)

	// The binding survived the provider failure.
	bound := f.reloadPayment(t, created.ID)
	assert.Equal(t, domain.PaymentStatusPending, bound.Status)
	assert.Equal(t, "pay_1", bound.ExternalID())

	f.pi.failApprove = false
	p, err := f.svc.Approve(context.Background(), user.ID, "pay_1", "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.ID)
	assert.Equal(t, domain.PaymentStatusProcessing, p.Status)
}

func TestApproveAfterSettledRejected(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")
	f.pi.markVerified("pay_1", "tx-1")
	_, _, err := f.svc.Complete(context.Background(), "pay_1", "tx-1", user.ID)
	require.NoError(t, err)

	// A late approve of a settled payment is a replay, not a retry.
	_, err = f.svc.Approve(context.Background(), user.ID, "pay_1", "")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, 1, f.pi.approves)

	// A payment the provider already cancelled cannot be approved.
	cancelled := f.pi.add("pay_2", "uid-1", booking.TotalAmount, booking.ID)
	cancelled.Status.Cancelled = true
	_, err = f.svc.Approve(context.Background(), user.ID, "pay_2", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestComplete(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")
	f.pi.markVerified("pay_1", "tx-abc")

	done, already, err := f.svc.Complete(context.Background(), "pay_1", "", 0)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, domain.PaymentStatusCompleted, done.Status)
	assert.Equal(t, "tx-abc", done.TxID)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 1, f.pi.completes)

	b := f.reloadBooking(t, booking.ID)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	assert.Equal(t, domain.BookingPaymentPaid, b.PaymentStatus)

	// 2% cashback on 100 Pi, exactly.
	u := f.reloadUser(t, user.ID)
	assert.True(t, u.RewardBalance.Equal(decimal.RequireFromString("2")), "balance = %s", u.RewardBalance)

	var rewards []models.RewardTransaction
	require.NoError(t, f.db.Where("user_id = ?", user.ID).Find(&rewards).Error)
	require.Len(t, rewards, 1)
	assert.True(t, rewards[0].Amount.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, domain.RewardTypeCashback, rewards[0].Type)
	assert.Equal(t, "pay_1", rewards[0].Reference)

	assert.EqualValues(t, 1, f.notificationCount(t, user.ID, "PAYMENT_COMPLETED"))
	var notif models.Notification
	require.NoError(t, f.db.Where("user_id = ? AND type = ?", user.ID, "PAYMENT_COMPLETED").First(&notif).Error)
	assert.Contains(t, notif.Data, "pay_1")
}

func TestCompleteReplay(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")
	f.pi.markVerified("pay_1", "tx-abc")

	_, already, err := f.svc.Complete(context.Background(), "pay_1", "", 0)
	require.NoError(t, err)
	require.False(t, already)

	// A second delivery acknowledges without any further effect.
	done, already, err := f.svc.Complete(context.Background(), "pay_1", "", 0)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, domain.PaymentStatusCompleted, done.Status)

	u := f.reloadUser(t, user.ID)
	assert.True(t, u.RewardBalance.Equal(decimal.RequireFromString("2")), "balance credited once, got %s", u.RewardBalance)

	var rewards int64
	require.NoError(t, f.db.Model(&models.RewardTransaction{}).Where("user_id = ?", user.ID).Count(&rewards).Error)
	assert.EqualValues(t, 1, rewards)
	assert.EqualValues(t, 1, f.notificationCount(t, user.ID, "PAYMENT_COMPLETED"))
	assert.Equal(t, 1, f.pi.completes)
}

func TestCompleteRequiresVerifiedTransaction(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")

	// No transaction submitted yet.
	_, _, err := f.svc.Complete(context.Background(), "pay_1", "", 0)
	assert.ErrorIs(t, err, ErrNotVerified)

	// Submitted but not verified.
	f.pi.payments["pay_1"].Transaction = &pinetwork.Transaction{TxID: "tx-abc", Verified: false}
	_, _, err = f.svc.Complete(context.Background(), "pay_1", "", 0)
	assert.ErrorIs(t, err, ErrNotVerified)

	u := f.reloadUser(t, user.ID)
	assert.True(t, u.RewardBalance.IsZero())
}

func TestCompleteAfterCancelRejected(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	p := f.processingPayment(t, user, booking, "pay_1")

	_, err := f.svc.Cancel(context.Background(), user.ID, p.ID)
	require.NoError(t, err)

	f.pi.markVerified("pay_1", "tx-late")
	_, _, err = f.svc.Complete(context.Background(), "pay_1", "tx-late", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	u := f.reloadUser(t, user.ID)
	assert.True(t, u.RewardBalance.IsZero(), "cancelled payment must not credit cashback")
}

func TestCompleteOwnership(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	other := f.seedUser(t, "uid-2")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")
	f.pi.markVerified("pay_1", "tx-abc")

	_, _, err := f.svc.Complete(context.Background(), "pay_1", "", other.ID)
	assert.ErrorIs(t, err, ErrNotYourPayment)

	_, _, err = f.svc.Complete(context.Background(), "pay_unknown", "", 0)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCancel(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	p := f.processingPayment(t, user, booking, "pay_1")

	cancelled, err := f.svc.Cancel(context.Background(), user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, f.pi.cancels, "bound payment must cancel on the provider first")

	b := f.reloadBooking(t, booking.ID)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)

	// Cancelling again is a no-op.
	again, err := f.svc.Cancel(context.Background(), user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, again.Status)
	assert.Equal(t, 1, f.pi.cancels)
}

func TestCancelGuards(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	other := f.seedUser(t, "uid-2")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")
	f.pi.markVerified("pay_1", "tx-abc")
	done, _, err := f.svc.Complete(context.Background(), "pay_1", "", 0)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), user.ID, done.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Cancel(context.Background(), other.ID, done.ID)
	assert.ErrorIs(t, err, ErrNotYourPayment)
}

func TestWebhookFailEvent(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")

	p, already, err := f.svc.HandleWebhookEvent(context.Background(), domain.EventPaymentFailed, pinetwork.WebhookPayment{Identifier: "pay_1"})
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)

	// The booking stays open for a retry, only its payment state flips.
	b := f.reloadBooking(t, booking.ID)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Equal(t, domain.BookingPaymentFailed, b.PaymentStatus)
	assert.EqualValues(t, 1, f.notificationCount(t, user.ID, "PAYMENT_FAILED"))

	// Replay is a no-op.
	_, already, err = f.svc.HandleWebhookEvent(context.Background(), domain.EventPaymentFailed, pinetwork.WebhookPayment{Identifier: "pay_1"})
	require.NoError(t, err)
	assert.True(t, already)
	assert.EqualValues(t, 1, f.notificationCount(t, user.ID, "PAYMENT_FAILED"))
}

func TestWebhookCancelEvent(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")

	p, already, err := f.svc.HandleWebhookEvent(context.Background(), domain.EventPaymentCancelled, pinetwork.WebhookPayment{Identifier: "pay_1"})
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, domain.PaymentStatusCancelled, p.Status)
	// Provider initiated: no cancel call back to the provider.
	assert.Equal(t, 0, f.pi.cancels)

	b := f.reloadBooking(t, booking.ID)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)

	_, already, err = f.svc.HandleWebhookEvent(context.Background(), domain.EventPaymentCancelled, pinetwork.WebhookPayment{Identifier: "pay_1"})
	require.NoError(t, err)
	assert.True(t, already)
}

func TestWebhookCancelAfterCompleteKeepsCompleted(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")
	f.pi.markVerified("pay_1", "tx-abc")
	_, _, err := f.svc.Complete(context.Background(), "pay_1", "", 0)
	require.NoError(t, err)

	// A late cancellation must not claw back a settled payment.
	p, already, err := f.svc.HandleWebhookEvent(context.Background(), domain.EventPaymentCancelled, pinetwork.WebhookPayment{Identifier: "pay_1"})
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)

	b := f.reloadBooking(t, booking.ID)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
}

func TestWebhookUnknownEvent(t *testing.T) {
	f := newPaymentFixture(t)
	_, _, err := f.svc.HandleWebhookEvent(context.Background(), "payment_exploded", pinetwork.WebhookPayment{Identifier: "pay_1"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestCompleteAmountDriftRejected(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	booking := f.seedBooking(t, user.ID, "100")
	f.processingPayment(t, user, booking, "pay_1")
	f.pi.markVerified("pay_1", "tx-abc")
	f.pi.payments["pay_1"].Amount = decimal.RequireFromString("1")

	_, _, err := f.svc.Complete(context.Background(), "pay_1", "", 0)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	var n int64
	require.NoError(t, f.db.Model(&models.SecurityLog{}).
		Where("event = ? AND severity = ?", "payment_amount_mismatch", domain.SeverityCritical).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestListAndGetForUser(t *testing.T) {
	f := newPaymentFixture(t)
	user := f.seedUser(t, "uid-1")
	other := f.seedUser(t, "uid-2")
	booking := f.seedBooking(t, user.ID, "100")
	p := f.pendingPayment(t, user, booking)

	got, err := f.svc.GetForUser(user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.GetForUser(other.ID, p.ID)
	assert.ErrorIs(t, err, ErrNotYourPayment)

	list, err := f.svc.ListForUser(user.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.ListForUser(other.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStatusTransitionTable(t *testing.T) {
	allowed := map[[2]string]bool{
		{domain.PaymentStatusPending, domain.PaymentStatusProcessing}:   true,
		{domain.PaymentStatusPending, domain.PaymentStatusCompleted}:    true,
		{domain.PaymentStatusPending, domain.PaymentStatusCancelled}:    true,
		{domain.PaymentStatusPending, domain.PaymentStatusFailed}:       true,
		{domain.PaymentStatusProcessing, domain.PaymentStatusCompleted}: true,
		{domain.PaymentStatusProcessing, domain.PaymentStatusCancelled}: true,
		{domain.PaymentStatusProcessing, domain.PaymentStatusFailed}:    true,
		{domain.PaymentStatusCompleted, domain.PaymentStatusRefunded}:   true,
	}
	statuses := []string{
		domain.PaymentStatusPending,
		domain.PaymentStatusProcessing,
		domain.PaymentStatusCompleted,
		domain.PaymentStatusCancelled,
		domain.PaymentStatusFailed,
		domain.PaymentStatusRefunded,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]string{from, to}]
			assert.Equal(t, want, domain.CanTransitionPayment(from, to), "%s -> %s", from, to)
		}
	}
}

func TestErrorsDistinguishable(t *testing.T) {
	// Handlers map sentinels to status codes, so they must not collide.
	sentinels := []error{
		ErrNotYourBooking, ErrBookingNotPayable, ErrDoublePayment,
		ErrPaymentBlocked, ErrPiNotLinked, ErrOwnershipMismatch,
		ErrNoBookingReference, ErrNoPendingPayment, ErrAlreadyProcessed,
		ErrAmountMismatch, ErrNotYourPayment, ErrNotVerified,
		ErrNotCompleted, ErrAlreadyRefunded, ErrInvalidTransition,
		ErrUnknownEvent,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v and %v must be distinct", a, b)
			}
		}
	}
}
