package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"voyago/config"
	"voyago/internal/domain"
	"voyago/internal/fraud"
	"voyago/internal/models"
	"voyago/internal/monitoring"
	"voyago/internal/repository"
	"voyago/internal/ws"
	"voyago/pkg/pinetwork"
)

var (
	ErrNotYourBooking     = errors.New("booking belongs to another user")
	ErrBookingNotPayable  = errors.New("booking is not payable")
	ErrDoublePayment      = errors.New("booking already has an active payment")
	ErrPaymentBlocked     = errors.New("payment blocked by fraud check")
	ErrPiNotLinked        = errors.New("pi account not linked")
	ErrOwnershipMismatch  = errors.New("payment belongs to a different pi account")
	ErrNoBookingReference = errors.New("provider payment carries no booking reference")
	ErrNoPendingPayment   = errors.New("no pending payment for this booking")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrAmountMismatch     = errors.New("payment amount does not match booking total")
	ErrNotYourPayment     = errors.New("payment belongs to another user")
	ErrNotVerified        = errors.New("transaction is not verified")
	ErrNotCompleted       = errors.New("payment is not completed")
	ErrAlreadyRefunded    = errors.New("payment already refunded")
	ErrInvalidTransition  = errors.New("illegal payment status transition")
	ErrUnknownEvent       = errors.New("unknown webhook event")
)

// ExpiryEnqueuer schedules the deferred expiry check for a new payment.
// Implemented by jobs.Client; nil disables scheduling.
type ExpiryEnqueuer interface {
	EnqueuePaymentExpiry(paymentID uint, delay time.Duration) error
}

// PaymentService drives the payment lifecycle against the Pi Network
// platform API. Local state is authoritative: every transition commits
// here first and provider acknowledgements are retried by the
// reconciliation sweep when they fail.
type PaymentService struct {
	db       *gorm.DB
	cfg      *config.Config
	pi       *pinetwork.Client
	payments *repository.PaymentRepository
	bookings *repository.BookingRepository
	users    *repository.UserRepository
	rewards  *repository.RewardRepository
	audits   *repository.AuditLogRepository
	security *repository.SecurityLogRepository
	notifs   *NotificationService
	hub      *ws.Hub
	enqueuer ExpiryEnqueuer
	logger   *zap.Logger
}

func NewPaymentService(
	db *gorm.DB,
	cfg *config.Config,
	pi *pinetwork.Client,
	payments *repository.PaymentRepository,
	bookings *repository.BookingRepository,
	users *repository.UserRepository,
	rewards *repository.RewardRepository,
	audits *repository.AuditLogRepository,
	security *repository.SecurityLogRepository,
	notifs *NotificationService,
	hub *ws.Hub,
	enqueuer ExpiryEnqueuer,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		db:       db,
		cfg:      cfg,
		pi:       pi,
		payments: payments,
		bookings: bookings,
		users:    users,
		rewards:  rewards,
		audits:   audits,
		security: security,
		notifs:   notifs,
		hub:      hub,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Create opens a pending payment for a booking after the fraud gate
// passes. The returned fraud result is echoed to the client so the app
// can explain a block.
func (s *PaymentService) Create(ctx context.Context, userID, bookingID uint, clientIP, userAgent string) (*models.Payment, *fraud.Result, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking.UserID != userID {
		return nil, nil, ErrNotYourBooking
	}
	if booking.Status == domain.BookingStatusCancelled {
		return nil, nil, ErrBookingNotPayable
	}
	if booking.PaymentStatus == domain.BookingPaymentPaid || booking.PaymentStatus == domain.BookingPaymentRefunded {
		return nil, nil, ErrBookingNotPayable
	}
	active, err := s.payments.HasActivePayment(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if active {
		return nil, nil, ErrDoublePayment
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, nil, err
	}

	res := fraud.Score(collectFraudSignals(s.bookings, s.payments, s.audits, user, booking.ItemType, booking.ItemID, booking.TotalAmount, clientIP))
	monitoring.TrackFraudDecision(res.Action)
	if res.Score >= fraud.SecurityLogThreshold {
		s.securityLog(userID, "payment_fraud_score", domain.SeverityCritical, clientIP, userAgent, map[string]any{
			"score":   res.Score,
			"reasons": res.Reasons,
			"booking": booking.Reference,
		})
	}
	switch res.Action {
	case fraud.ActionBlock:
		s.logger.Warn("payment blocked",
			zap.Uint("user_id", userID),
			zap.Uint("booking_id", bookingID),
			zap.Int("fraud_score", res.Score))
		return nil, &res, ErrPaymentBlocked
	case fraud.ActionMonitor:
		s.logger.Warn("payment flagged for monitoring",
			zap.Uint("user_id", userID),
			zap.Uint("booking_id", bookingID),
			zap.Int("fraud_score", res.Score))
	}

	payment := &models.Payment{
		UserID:    userID,
		BookingID: &booking.ID,
		Amount:    booking.TotalAmount,
		Currency:  booking.Currency,
		Provider:  domain.ProviderPiNetwork,
		Status:    domain.PaymentStatusPending,
		Metadata: metaJSON(map[string]any{
			"booking_reference": booking.Reference,
			"fraud_score":       res.Score,
		}),
	}
	if err := s.payments.Create(payment); err != nil {
		return nil, nil, err
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueuePaymentExpiry(payment.ID, s.cfg.Payment.ExpiryWindow); err != nil {
			// The periodic sweep expires it instead.
			s.logger.Error("enqueue payment expiry failed", zap.Uint("payment_id", payment.ID), zap.Error(err))
		}
	}

	s.audit(userID, "payment.created", strconv.Itoa(int(payment.ID)), clientIP, userAgent, map[string]any{
		"booking_id": booking.ID,
		"amount":     payment.Amount.String(),
	})
	monitoring.TrackPaymentTransition(domain.PaymentStatusPending)
	s.logger.Info("payment created",
		zap.Uint("payment_id", payment.ID),
		zap.Uint("booking_id", booking.ID),
		zap.String("amount", payment.Amount.String()))
	return payment, &res, nil
}

// Approve binds the provider payment to the caller's pending local
// payment and acknowledges it server-side. Idempotent: re-approving a
// payment this user already moved to processing returns it unchanged.
func (s *PaymentService) Approve(ctx context.Context, userID uint, piPaymentID, clientIP string) (*models.Payment, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if !user.HasLinkedPi() {
		return nil, ErrPiNotLinked
	}

	pp, err := s.pi.GetPayment(ctx, piPaymentID)
	if err != nil {
		monitoring.TrackProviderError("get_payment")
		return nil, fmt.Errorf("fetch provider payment: %w", err)
	}
	if pp.UserUID != *user.PiUID {
		s.securityLog(userID, "payment_ownership_mismatch", domain.SeverityWarning, clientIP, "", map[string]any{
			"pi_payment_id": piPaymentID,
			"payment_uid":   pp.UserUID,
		})
		return nil, ErrOwnershipMismatch
	}
	if pp.Status.Cancelled || pp.Status.UserCancelled {
		return nil, ErrInvalidTransition
	}

	local, err := s.payments.GetByPiPaymentID(piPaymentID)
	switch {
	case err == nil:
		if local.UserID != userID {
			return nil, ErrAlreadyProcessed
		}
		switch local.Status {
		case domain.PaymentStatusProcessing:
			return local, nil
		case domain.PaymentStatusPending:
			// A previous approve bound the payment and then failed
			// against the provider. Resume from the bound state.
		default:
			return nil, ErrAlreadyProcessed
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		bookingID, ok := metaBookingID(pp.Metadata)
		if !ok {
			return nil, ErrNoBookingReference
		}
		local, err = s.payments.GetPendingForBooking(bookingID, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPendingPayment
		}
		if err != nil {
			return nil, err
		}
		if !pp.Amount.Equal(local.Amount) {
			s.securityLog(userID, "payment_amount_mismatch", domain.SeverityWarning, clientIP, "", map[string]any{
				"pi_payment_id":   piPaymentID,
				"provider_amount": pp.Amount.String(),
				"local_amount":    local.Amount.String(),
			})
			return nil, ErrAmountMismatch
		}
		if err := s.bindProviderPayment(local, piPaymentID); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !pp.Status.DeveloperApproved {
		if _, err := s.pi.ApprovePayment(ctx, piPaymentID); err != nil {
			monitoring.TrackProviderError("approve_payment")
			// The payment stays pending and bound, so the client can
			// safely retry the approve call.
			return nil, fmt.Errorf("approve provider payment: %w", err)
		}
	}

	local.Status = domain.PaymentStatusProcessing
	if err := s.payments.Update(local); err != nil {
		return nil, err
	}

	s.audit(userID, "payment.approved", strconv.Itoa(int(local.ID)), clientIP, "", map[string]any{
		"pi_payment_id": piPaymentID,
	})
	monitoring.TrackPaymentTransition(domain.PaymentStatusProcessing)
	s.hub.PublishPaymentStatus(local.UserID, local.ID, piPaymentID, local.Status, local.BookingID)
	s.logger.Info("payment approved",
		zap.Uint("payment_id", local.ID),
		zap.String("pi_payment_id", piPaymentID))
	return local, nil
}

// bindProviderPayment writes the provider identifier onto the local
// payment. The column's unique index makes this the dedup point: two
// requests can both pass the lookups, only one binding survives.
func (s *PaymentService) bindProviderPayment(local *models.Payment, piPaymentID string) error {
	res := s.db.Model(&models.Payment{}).
		Where("id = ? AND pi_payment_id IS NULL", local.ID).
		Update("pi_payment_id", piPaymentID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrAlreadyProcessed
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := s.payments.GetByID(local.ID)
		if err != nil {
			return err
		}
		if cur.ExternalID() != piPaymentID {
			return ErrAlreadyProcessed
		}
	}
	local.PiPaymentID = &piPaymentID
	return nil
}

// Complete settles a payment: verifies the blockchain transaction with
// the provider, acknowledges completion, and commits the local effects
// (payment completed, booking confirmed, cashback credited, receipt
// notification) in one transaction. callerID zero means a webhook or
// sweep invocation with no ownership check. The bool result reports a
// replay: the payment was already completed and nothing changed.
func (s *PaymentService) Complete(ctx context.Context, piPaymentID, txid string, callerID uint) (*models.Payment, bool, error) {
	local, err := s.payments.GetByPiPaymentID(piPaymentID)
	if err != nil {
		return nil, false, err
	}
	if callerID != 0 && local.UserID != callerID {
		return nil, false, ErrNotYourPayment
	}
	if local.Status == domain.PaymentStatusCompleted {
		return local, true, nil
	}
	if domain.IsTerminalPaymentStatus(local.Status) {
		return nil, false, ErrInvalidTransition
	}

	pp, err := s.pi.GetPayment(ctx, piPaymentID)
	if err != nil {
		monitoring.TrackProviderError("get_payment")
		return nil, false, fmt.Errorf("fetch provider payment: %w", err)
	}
	if pp.Transaction == nil || !pp.Transaction.Verified {
		return nil, false, ErrNotVerified
	}
	if txid == "" {
		txid = pp.Transaction.TxID
	}
	if !pp.Amount.Equal(local.Amount) {
		s.securityLog(local.UserID, "payment_amount_mismatch", domain.SeverityCritical, "", "", map[string]any{
			"pi_payment_id":   piPaymentID,
			"provider_amount": pp.Amount.String(),
			"local_amount":    local.Amount.String(),
		})
		return nil, false, ErrAmountMismatch
	}

	// Acknowledge first. If the local commit fails afterwards the sweep
	// finds a processing payment the provider reports complete and
	// replays the commit.
	if !pp.Status.DeveloperCompleted {
		if _, err := s.pi.CompletePayment(ctx, piPaymentID, txid); err != nil {
			monitoring.TrackProviderError("complete_payment")
			return nil, false, fmt.Errorf("complete provider payment: %w", err)
		}
	}

	var bookingRef string
	if local.BookingID != nil {
		if b, err := s.bookings.GetByID(*local.BookingID); err == nil {
			bookingRef = b.Reference
		}
	}

	cashback := local.Amount.Mul(domain.CashbackRate)
	now := time.Now()
	already := false

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status IN ?", local.ID, []string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}).
			Updates(map[string]any{
				"status":       domain.PaymentStatusCompleted,
				"tx_id":        txid,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race against a concurrent completion or a
			// cancellation. Re-read to tell which.
			var cur models.Payment
			if err := tx.First(&cur, local.ID).Error; err != nil {
				return err
			}
			if cur.Status == domain.PaymentStatusCompleted {
				already = true
				*local = cur
				return nil
			}
			return ErrInvalidTransition
		}

		if local.BookingID != nil {
			if err := tx.Model(&models.Booking{}).
				Where("id = ?", *local.BookingID).
				Updates(map[string]any{
					"status":         domain.BookingStatusConfirmed,
					"payment_status": domain.BookingPaymentPaid,
				}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", local.UserID).
			Update("reward_balance", gorm.Expr("reward_balance + ?", cashback)).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.RewardTransaction{
			UserID:    local.UserID,
			Amount:    cashback,
			Type:      domain.RewardTypeCashback,
			Reference: piPaymentID,
		}).Error; err != nil {
			return err
		}

		// Persisting the receipt inside the transaction keeps replays
		// from duplicating it; only the push happens after commit.
		if err := tx.Create(&models.Notification{
			UserID: local.UserID,
			Type:   "PAYMENT_COMPLETED",
			Title:  "Payment received",
			Body:   fmt.Sprintf("Your payment of %s Pi is confirmed. You earned %s Pi cashback.", local.Amount.String(), cashback.String()),
			Data: metaJSON(map[string]any{
				"pi_payment_id": piPaymentID,
				"amount":        local.Amount.String(),
				"cashback":      cashback.String(),
				"reference":     bookingRef,
			}),
		}).Error; err != nil {
			return err
		}

		return tx.Create(&models.AuditLog{
			UserID:     &local.UserID,
			Action:     "payment.completed",
			Resource:   "payment",
			ResourceID: strconv.Itoa(int(local.ID)),
			Metadata: metaJSON(map[string]any{
				"pi_payment_id": piPaymentID,
				"txid":          txid,
				"cashback":      cashback.String(),
			}),
		}).Error
	})
	if err != nil {
		return nil, false, err
	}
	if already {
		return local, true, nil
	}

	local.Status = domain.PaymentStatusCompleted
	local.TxID = txid
	local.CompletedAt = &now

	s.notifs.SendPush(local.UserID, "PAYMENT_COMPLETED", "Payment received",
		fmt.Sprintf("Your payment of %s Pi is confirmed.", local.Amount.String()),
		map[string]any{"pi_payment_id": piPaymentID})
	s.hub.PublishPaymentStatus(local.UserID, local.ID, piPaymentID, local.Status, local.BookingID)
	monitoring.TrackPaymentTransition(domain.PaymentStatusCompleted)
	s.logger.Info("payment completed",
		zap.Uint("payment_id", local.ID),
		zap.String("pi_payment_id", piPaymentID),
		zap.String("txid", txid),
		zap.String("cashback", cashback.String()))
	return local, false, nil
}

// Cancel abandons a checkout. The provider payment, when bound, must
// cancel first so a transaction cannot land on a payment the store
// already closed. Cancelling an already cancelled payment is a no-op.
func (s *PaymentService) Cancel(ctx context.Context, callerID, paymentID uint) (*models.Payment, error) {
	local, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if callerID != 0 && local.UserID != callerID {
		return nil, ErrNotYourPayment
	}
	if local.Status == domain.PaymentStatusCancelled {
		return local, nil
	}
	if domain.IsTerminalPaymentStatus(local.Status) {
		return nil, ErrInvalidTransition
	}

	if ext := local.ExternalID(); ext != "" {
		if _, err := s.pi.CancelPayment(ctx, ext); err != nil && !pinetwork.IsNotFound(err) {
			monitoring.TrackProviderError("cancel_payment")
			return nil, fmt.Errorf("cancel provider payment: %w", err)
		}
	}

	if err := s.cancelLocally(local, "payment.cancelled", map[string]any{"by": "user"}); err != nil {
		return nil, err
	}
	return local, nil
}

// CancelByExternal applies a provider-initiated cancellation (webhook
// or reconciliation). Terminal payments are left untouched and reported
// as replays.
func (s *PaymentService) CancelByExternal(ctx context.Context, piPaymentID string) (*models.Payment, bool, error) {
	local, err := s.payments.GetByPiPaymentID(piPaymentID)
	if err != nil {
		return nil, false, err
	}
	if domain.IsTerminalPaymentStatus(local.Status) {
		return local, true, nil
	}
	if err := s.cancelLocally(local, "payment.cancelled", map[string]any{"by": "provider"}); err != nil {
		return nil, false, err
	}
	if local.BookingID != nil {
		if b, err := s.bookings.GetByID(*local.BookingID); err == nil {
			_ = s.notifs.NotifyBookingCancelled(local.UserID, b.Reference)
		}
	}
	return local, false, nil
}

// FailByExternal records a provider-reported payment failure. The
// booking stays open so the user can retry with a fresh payment.
func (s *PaymentService) FailByExternal(ctx context.Context, piPaymentID string) (*models.Payment, bool, error) {
	local, err := s.payments.GetByPiPaymentID(piPaymentID)
	if err != nil {
		return nil, false, err
	}
	if domain.IsTerminalPaymentStatus(local.Status) {
		return local, true, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status IN ?", local.ID, []string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}).
			Update("status", domain.PaymentStatusFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		if local.BookingID != nil {
			if err := tx.Model(&models.Booking{}).
				Where("id = ?", *local.BookingID).
				Update("payment_status", domain.BookingPaymentFailed).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.AuditLog{
			UserID:     &local.UserID,
			Action:     "payment.failed",
			Resource:   "payment",
			ResourceID: strconv.Itoa(int(local.ID)),
			Metadata:   metaJSON(map[string]any{"pi_payment_id": piPaymentID, "by": "provider"}),
		}).Error
	})
	if err != nil {
		return nil, false, err
	}

	local.Status = domain.PaymentStatusFailed
	_ = s.notifs.NotifyPaymentFailed(local.UserID, piPaymentID)
	s.hub.PublishPaymentStatus(local.UserID, local.ID, piPaymentID, local.Status, local.BookingID)
	monitoring.TrackPaymentTransition(domain.PaymentStatusFailed)
	s.logger.Info("payment failed", zap.Uint("payment_id", local.ID), zap.String("pi_payment_id", piPaymentID))
	return local, false, nil
}

// cancelLocally moves a non-terminal payment to cancelled and releases
// its booking.
func (s *PaymentService) cancelLocally(local *models.Payment, action string, meta map[string]any) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status IN ?", local.ID, []string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}).
			Update("status", domain.PaymentStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		if local.BookingID != nil {
			if err := tx.Model(&models.Booking{}).
				Where("id = ?", *local.BookingID).
				Update("status", domain.BookingStatusCancelled).Error; err != nil {
				return err
			}
		}
		if meta == nil {
			meta = map[string]any{}
		}
		meta["pi_payment_id"] = local.ExternalID()
		return tx.Create(&models.AuditLog{
			UserID:     &local.UserID,
			Action:     action,
			Resource:   "payment",
			ResourceID: strconv.Itoa(int(local.ID)),
			Metadata:   metaJSON(meta),
		}).Error
	})
	if err != nil {
		return err
	}

	local.Status = domain.PaymentStatusCancelled
	s.hub.PublishPaymentStatus(local.UserID, local.ID, local.ExternalID(), local.Status, local.BookingID)
	monitoring.TrackPaymentTransition(domain.PaymentStatusCancelled)
	s.logger.Info("payment cancelled", zap.Uint("payment_id", local.ID), zap.String("action", action))
	return nil
}

// VerifyResult pairs the provider and local views of a payment.
type VerifyResult struct {
	Provider *pinetwork.Payment `json:"provider"`
	Local    *models.Payment    `json:"local"`
	Synced   bool               `json:"synced"`
}

// Verify fetches both sides of a payment and reports whether they
// agree. Read-only; the reconciliation sweep is what repairs drift.
func (s *PaymentService) Verify(ctx context.Context, callerID uint, piPaymentID string) (*VerifyResult, error) {
	local, err := s.payments.GetByPiPaymentID(piPaymentID)
	if err != nil {
		return nil, err
	}
	if callerID != 0 && local.UserID != callerID {
		return nil, ErrNotYourPayment
	}
	pp, err := s.pi.GetPayment(ctx, piPaymentID)
	if err != nil {
		monitoring.TrackProviderError("get_payment")
		return nil, fmt.Errorf("fetch provider payment: %w", err)
	}
	return &VerifyResult{Provider: pp, Local: local, Synced: statusInSync(pp, local.Status)}, nil
}

func statusInSync(pp *pinetwork.Payment, localStatus string) bool {
	switch {
	case pp.Status.DeveloperCompleted:
		return localStatus == domain.PaymentStatusCompleted || localStatus == domain.PaymentStatusRefunded
	case pp.Status.Cancelled || pp.Status.UserCancelled:
		return localStatus == domain.PaymentStatusCancelled || localStatus == domain.PaymentStatusFailed
	case pp.Status.DeveloperApproved:
		return localStatus == domain.PaymentStatusProcessing
	default:
		return localStatus == domain.PaymentStatusPending
	}
}

// Refund compensates a completed payment with an app-to-user transfer
// of the full amount. At most one refund per payment; the unique index
// on refund_of_id backs the check under races. callerID zero is the
// admin path.
func (s *PaymentService) Refund(ctx context.Context, callerID, paymentID uint, reason string) (*models.Payment, error) {
	original, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if callerID != 0 && original.UserID != callerID {
		return nil, ErrNotYourPayment
	}
	if original.Status != domain.PaymentStatusCompleted {
		if original.Status == domain.PaymentStatusRefunded {
			return nil, ErrAlreadyRefunded
		}
		return nil, ErrNotCompleted
	}
	if _, err := s.payments.GetRefundOf(original.ID); err == nil {
		return nil, ErrAlreadyRefunded
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err := s.users.GetByID(original.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasLinkedPi() {
		return nil, ErrPiNotLinked
	}

	var bookingRef string
	if original.BookingID != nil {
		if b, err := s.bookings.GetByID(*original.BookingID); err == nil {
			bookingRef = b.Reference
		}
	}

	// Reserve the refund slot before any money moves. The unique index
	// on refund_of_id admits one row per original, so a concurrent
	// refund fails here instead of sending a second transfer. The row
	// also records intent if the process dies mid-refund.
	refund := &models.Payment{
		UserID:     original.UserID,
		BookingID:  original.BookingID,
		Amount:     original.Amount,
		Currency:   original.Currency,
		Provider:   original.Provider,
		Status:     domain.PaymentStatusPending,
		RefundOfID: &original.ID,
		Metadata: metaJSON(map[string]any{
			"refund_of": original.ExternalID(),
			"reason":    reason,
		}),
	}
	if err := s.payments.Create(refund); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyRefunded
		}
		return nil, err
	}

	pp, err := s.pi.CreatePayment(ctx, pinetwork.A2URequest{
		Amount: original.Amount,
		Memo:   fmt.Sprintf("Voyago refund for booking %s", bookingRef),
		Metadata: map[string]any{
			"refund_of": original.ExternalID(),
			"reason":    reason,
		},
		UID: *user.PiUID,
	})
	if err != nil {
		monitoring.TrackProviderError("create_payment")
		s.releaseRefundSlot(refund.ID)
		return nil, fmt.Errorf("create refund payment: %w", err)
	}

	txid := ""
	if pp.Transaction != nil {
		txid = pp.Transaction.TxID
	}
	now := time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payment{}).
			Where("id = ?", refund.ID).
			Updates(map[string]any{
				"pi_payment_id": pp.Identifier,
				"tx_id":         txid,
				"status":        domain.PaymentStatusCompleted,
				"completed_at":  now,
			}).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", original.ID, domain.PaymentStatusCompleted).
			Update("status", domain.PaymentStatusRefunded)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyRefunded
		}
		if original.BookingID != nil {
			if err := tx.Model(&models.Booking{}).
				Where("id = ?", *original.BookingID).
				Updates(map[string]any{
					"status":         domain.BookingStatusCancelled,
					"payment_status": domain.BookingPaymentRefunded,
				}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.AuditLog{
			UserID:     &original.UserID,
			Action:     "payment.refunded",
			Resource:   "payment",
			ResourceID: strconv.Itoa(int(original.ID)),
			Metadata: metaJSON(map[string]any{
				"refund_payment_id": refund.ID,
				"pi_payment_id":     pp.Identifier,
				"amount":            original.Amount.String(),
				"reason":            reason,
			}),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	refund.PiPaymentID = &pp.Identifier
	refund.TxID = txid
	refund.Status = domain.PaymentStatusCompleted
	refund.CompletedAt = &now
	original.Status = domain.PaymentStatusRefunded
	_ = s.notifs.NotifyRefundIssued(original.UserID, pp.Identifier, original.Amount)
	s.hub.PublishPaymentStatus(original.UserID, original.ID, original.ExternalID(), original.Status, original.BookingID)
	monitoring.TrackPaymentTransition(domain.PaymentStatusRefunded)
	s.logger.Info("payment refunded",
		zap.Uint("payment_id", original.ID),
		zap.Uint("refund_payment_id", refund.ID),
		zap.String("amount", original.Amount.String()))
	return refund, nil
}

// releaseRefundSlot frees the refund_of_id reservation after a failed
// provider transfer so the refund can be retried.
func (s *PaymentService) releaseRefundSlot(refundID uint) {
	err := s.db.Model(&models.Payment{}).
		Where("id = ?", refundID).
		Updates(map[string]any{
			"status":       domain.PaymentStatusFailed,
			"refund_of_id": nil,
		}).Error
	if err != nil {
		s.logger.Error("release refund slot failed", zap.Uint("payment_id", refundID), zap.Error(err))
	}
}

// HandleWebhookEvent dispatches a verified provider callback. The bool
// result reports a replay the caller should acknowledge without side
// effects.
func (s *PaymentService) HandleWebhookEvent(ctx context.Context, event string, wp pinetwork.WebhookPayment) (*models.Payment, bool, error) {
	switch event {
	case domain.EventPaymentCompleted:
		txid := ""
		if wp.Transaction != nil {
			txid = wp.Transaction.TxID
		}
		return s.Complete(ctx, wp.Identifier, txid, 0)
	case domain.EventPaymentCancelled:
		return s.CancelByExternal(ctx, wp.Identifier)
	case domain.EventPaymentFailed:
		return s.FailByExternal(ctx, wp.Identifier)
	default:
		return nil, false, ErrUnknownEvent
	}
}

// ExpireIfPending cancels a payment that is still pending when the
// checkout window closes. Safe to call for any payment; anything past
// pending is left alone.
func (s *PaymentService) ExpireIfPending(ctx context.Context, paymentID uint) error {
	local, err := s.payments.GetByID(paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if local.Status != domain.PaymentStatusPending {
		return nil
	}
	// Refund reservations are not checkouts. Expiring one would release
	// a paid booking.
	if local.RefundOfID != nil {
		return nil
	}

	// A bound payment may already be approved on the provider side, so
	// close it there first. Otherwise a transaction could still land on
	// a payment the store considers dead.
	if ext := local.ExternalID(); ext != "" {
		if _, err := s.pi.CancelPayment(ctx, ext); err != nil && !pinetwork.IsNotFound(err) {
			monitoring.TrackProviderError("cancel_payment")
			return fmt.Errorf("cancel provider payment: %w", err)
		}
	}

	if err := s.cancelLocally(local, "payment.expired", map[string]any{"by": "expiry"}); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Approved between the status read and the update.
			return nil
		}
		return err
	}

	var data map[string]any
	if local.BookingID != nil {
		if b, err := s.bookings.GetByID(*local.BookingID); err == nil {
			data = map[string]any{"reference": b.Reference}
		}
	}
	_ = s.notifs.Notify(local.UserID, "PAYMENT_EXPIRED", "Payment window expired",
		"Your booking was released because the payment was not completed in time.", data)
	return nil
}

// Reconcile is the periodic sweep: it expires stale pending payments
// whose expiry task was lost and settles processing payments the
// provider has already resolved. Per-payment failures are logged and
// skipped so one bad payment cannot stall the sweep.
func (s *PaymentService) Reconcile(ctx context.Context) error {
	const batch = 100

	cutoff := time.Now().Add(-s.cfg.Payment.ExpiryWindow)
	stale, err := s.payments.ListPendingOlderThan(cutoff, batch)
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := s.ExpireIfPending(ctx, p.ID); err != nil {
			s.logger.Warn("reconcile: expire failed", zap.Uint("payment_id", p.ID), zap.Error(err))
		}
	}

	processing, err := s.payments.ListByStatus(domain.PaymentStatusProcessing, batch)
	if err != nil {
		return err
	}
	settled := 0
	for _, p := range processing {
		ext := p.ExternalID()
		if ext == "" {
			continue
		}
		pp, err := s.pi.GetPayment(ctx, ext)
		if err != nil {
			monitoring.TrackProviderError("get_payment")
			s.logger.Warn("reconcile: provider fetch failed", zap.Uint("payment_id", p.ID), zap.Error(err))
			continue
		}
		switch {
		case pp.Transaction != nil && pp.Transaction.Verified:
			if _, _, err := s.Complete(ctx, ext, pp.Transaction.TxID, 0); err != nil {
				s.logger.Warn("reconcile: complete failed", zap.Uint("payment_id", p.ID), zap.Error(err))
				continue
			}
			settled++
		case pp.Status.Cancelled || pp.Status.UserCancelled:
			if _, _, err := s.CancelByExternal(ctx, ext); err != nil {
				s.logger.Warn("reconcile: cancel failed", zap.Uint("payment_id", p.ID), zap.Error(err))
				continue
			}
			settled++
		}
	}

	if len(stale) > 0 || settled > 0 {
		s.logger.Info("payment reconciliation sweep",
			zap.Int("expired_candidates", len(stale)),
			zap.Int("settled", settled))
	}
	return nil
}

// ListForUser returns the caller's payment history, newest first.
func (s *PaymentService) ListForUser(userID uint, limit, offset int) ([]models.Payment, error) {
	return s.payments.ListByUserID(userID, limit, offset)
}

// GetForUser returns a payment only to its owner.
func (s *PaymentService) GetForUser(userID, paymentID uint) (*models.Payment, error) {
	p, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotYourPayment
	}
	return p, nil
}

// collectFraudSignals gathers the scoring aggregates for a booking or
// payment attempt. Signal reads fail open: a broken counter scores as
// zero risk rather than blocking the purchase.
func collectFraudSignals(
	bookings *repository.BookingRepository,
	payments *repository.PaymentRepository,
	audits *repository.AuditLogRepository,
	user *models.User,
	itemType string,
	itemID uint,
	amount decimal.Decimal,
	clientIP string,
) fraud.Signals {
	now := time.Now()
	dayAgo := now.Add(-24 * time.Hour)

	sig := fraud.Signals{
		Amount:     amount,
		AccountAge: now.Sub(user.CreatedAt),
		KnownIP:    true,
	}
	if n, err := bookings.CountByUserSince(user.ID, dayAgo); err == nil {
		sig.RecentBookings = n
	}
	if n, err := bookings.CountByUser(user.ID); err == nil {
		sig.PriorBookings = n
	}
	if n, err := bookings.CountByUserForItem(user.ID, itemType, itemID); err == nil {
		sig.SameItemBookings = n
	}
	if n, err := payments.CountFailedByUserSince(user.ID, dayAgo); err == nil {
		sig.RecentFailedPayments = n
	}
	if avg, err := payments.AverageCompletedAmount(user.ID); err == nil {
		sig.AverageAmount = decimal.NewFromFloat(avg)
	}
	if clientIP != "" {
		if known, err := audits.ExistsUserIP(user.ID, clientIP); err == nil {
			sig.KnownIP = known
		}
	}
	return sig
}

func (s *PaymentService) audit(userID uint, action, resourceID, ip, userAgent string, meta map[string]any) {
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "payment",
		ResourceID: resourceID,
		IP:         ip,
		UserAgent:  userAgent,
		Metadata:   metaJSON(meta),
	}
	if err := s.audits.Create(entry); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *PaymentService) securityLog(userID uint, event, severity, ip, userAgent string, details map[string]any) {
	entry := &models.SecurityLog{
		UserID:    &userID,
		Event:     event,
		Severity:  severity,
		IP:        ip,
		UserAgent: userAgent,
		Details:   metaJSON(details),
	}
	if err := s.security.Create(entry); err != nil {
		s.logger.Warn("security log write failed", zap.String("event", event), zap.Error(err))
	}
}

func metaJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// metaBookingID pulls the booking reference out of provider payment
// metadata. The client SDK serializes numbers as JSON numbers, but a
// string is accepted too.
func metaBookingID(meta map[string]any) (uint, bool) {
	v, ok := meta["booking_id"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n <= 0 {
			return 0, false
		}
		return uint(n), true
	case string:
		id, err := strconv.ParseUint(n, 10, 64)
		if err != nil || id == 0 {
			return 0, false
		}
		return uint(id), true
	default:
		return 0, false
	}
}
