package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"voyago/internal/domain"
	"voyago/internal/fraud"
	"voyago/internal/models"
	"voyago/internal/monitoring"
	"voyago/internal/repository"
)

var (
	ErrItemNotFound   = errors.New("bookable item not found")
	ErrInvalidDates   = errors.New("invalid booking dates")
	ErrTooManyGuests  = errors.New("guest count exceeds item capacity")
	ErrBookingBlocked = errors.New("booking blocked by fraud check")
	ErrBookingPaid    = errors.New("paid bookings are cancelled through a refund")
	ErrActivePayment  = errors.New("booking has an active payment")
)

// BookingService creates and manages reservations across the three
// catalog types. Pricing is computed server-side from the catalog so a
// client can never name its own total.
type BookingService struct {
	bookings    *repository.BookingRepository
	hotels      *repository.HotelRepository
	attractions *repository.AttractionRepository
	restaurants *repository.RestaurantRepository
	payments    *repository.PaymentRepository
	users       *repository.UserRepository
	audits      *repository.AuditLogRepository
	security    *repository.SecurityLogRepository
	notifs      *NotificationService
	logger      *zap.Logger
}

func NewBookingService(
	bookings *repository.BookingRepository,
	hotels *repository.HotelRepository,
	attractions *repository.AttractionRepository,
	restaurants *repository.RestaurantRepository,
	payments *repository.PaymentRepository,
	users *repository.UserRepository,
	audits *repository.AuditLogRepository,
	security *repository.SecurityLogRepository,
	notifs *NotificationService,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		bookings:    bookings,
		hotels:      hotels,
		attractions: attractions,
		restaurants: restaurants,
		payments:    payments,
		users:       users,
		audits:      audits,
		security:    security,
		notifs:      notifs,
		logger:      logger,
	}
}

type CreateBookingInput struct {
	ItemType string
	ItemID   uint
	CheckIn  time.Time
	CheckOut time.Time
	Guests   int
}

// Create prices the item, runs the fraud gate, and reserves. The fraud
// result is returned alongside so the handler can echo score and
// reasons on a block.
func (s *BookingService) Create(userID uint, in CreateBookingInput, clientIP, userAgent string) (*models.Booking, *fraud.Result, error) {
	if in.Guests < 1 {
		in.Guests = 1
	}

	total, currency, err := s.price(&in)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, nil, err
	}

	res := fraud.Score(collectFraudSignals(s.bookings, s.payments, s.audits, user, in.ItemType, in.ItemID, total, clientIP))
	monitoring.TrackFraudDecision(res.Action)
	if res.Score >= fraud.SecurityLogThreshold {
		s.securityLog(userID, "booking_fraud_score", clientIP, userAgent, map[string]any{
			"score":     res.Score,
			"reasons":   res.Reasons,
			"item_type": in.ItemType,
			"item_id":   in.ItemID,
		})
	}
	switch res.Action {
	case fraud.ActionBlock:
		s.logger.Warn("booking blocked",
			zap.Uint("user_id", userID),
			zap.String("item_type", in.ItemType),
			zap.Uint("item_id", in.ItemID),
			zap.Int("fraud_score", res.Score))
		return nil, &res, ErrBookingBlocked
	case fraud.ActionMonitor:
		s.logger.Warn("booking flagged for monitoring",
			zap.Uint("user_id", userID),
			zap.Int("fraud_score", res.Score))
	}

	booking := &models.Booking{
		Reference:     newBookingReference(),
		UserID:        userID,
		ItemType:      in.ItemType,
		ItemID:        in.ItemID,
		CheckIn:       in.CheckIn,
		CheckOut:      in.CheckOut,
		Guests:        in.Guests,
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.BookingPaymentUnpaid,
		TotalAmount:   total,
		Currency:      currency,
	}
	if err := s.bookings.Create(booking); err != nil {
		return nil, nil, err
	}

	s.audit(userID, "booking.created", booking.ID, clientIP, userAgent, map[string]any{
		"reference": booking.Reference,
		"item_type": in.ItemType,
		"item_id":   in.ItemID,
		"total":     total.String(),
	})
	monitoring.TrackBookingCreated()
	_ = s.notifs.NotifyBookingCreated(userID, booking.Reference, total)
	s.logger.Info("booking created",
		zap.Uint("booking_id", booking.ID),
		zap.String("reference", booking.Reference),
		zap.String("total", total.String()))
	return booking, &res, nil
}

// price resolves the catalog item and computes the server-side total.
// Inactive items are indistinguishable from missing ones.
func (s *BookingService) price(in *CreateBookingInput) (decimal.Decimal, string, error) {
	switch in.ItemType {
	case domain.ItemTypeHotel:
		h, err := s.hotels.GetByID(in.ItemID)
		if err != nil || !h.IsActive {
			return decimal.Zero, "", ErrItemNotFound
		}
		if in.CheckIn.IsZero() || in.CheckOut.IsZero() || !in.CheckOut.After(in.CheckIn) {
			return decimal.Zero, "", ErrInvalidDates
		}
		if in.CheckIn.Before(time.Now().Add(-24 * time.Hour)) {
			return decimal.Zero, "", ErrInvalidDates
		}
		if in.Guests > h.MaxGuests {
			return decimal.Zero, "", ErrTooManyGuests
		}
		nights := int64(in.CheckOut.Sub(in.CheckIn).Hours() / 24)
		if nights < 1 {
			nights = 1
		}
		return h.PricePerNight.Mul(decimal.NewFromInt(nights)), h.Currency, nil

	case domain.ItemTypeAttraction:
		a, err := s.attractions.GetByID(in.ItemID)
		if err != nil || !a.IsActive {
			return decimal.Zero, "", ErrItemNotFound
		}
		if in.CheckIn.IsZero() || in.CheckIn.Before(time.Now().Add(-24*time.Hour)) {
			return decimal.Zero, "", ErrInvalidDates
		}
		if in.CheckOut.IsZero() {
			in.CheckOut = in.CheckIn
		}
		return a.TicketPrice.Mul(decimal.NewFromInt(int64(in.Guests))), a.Currency, nil

	case domain.ItemTypeRestaurant:
		r, err := s.restaurants.GetByID(in.ItemID)
		if err != nil || !r.IsActive {
			return decimal.Zero, "", ErrItemNotFound
		}
		if in.CheckIn.IsZero() || in.CheckIn.Before(time.Now().Add(-24*time.Hour)) {
			return decimal.Zero, "", ErrInvalidDates
		}
		if in.CheckOut.IsZero() {
			in.CheckOut = in.CheckIn
		}
		return r.AveragePrice.Mul(decimal.NewFromInt(int64(in.Guests))), r.Currency, nil

	default:
		return decimal.Zero, "", ErrItemNotFound
	}
}

// Get returns a booking only to its owner.
func (s *BookingService) Get(userID, bookingID uint) (*models.Booking, error) {
	b, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrNotYourBooking
	}
	return b, nil
}

// ListForUser returns the caller's bookings, newest first, with the
// total count for pagination.
func (s *BookingService) ListForUser(userID uint, limit, offset int) ([]models.Booking, int64, error) {
	return s.bookings.ListByUserID(userID, limit, offset)
}

// Cancel abandons an unpaid booking. Paid bookings go through the
// refund flow, and a booking with a live payment needs that payment
// cancelled first so provider state cannot diverge.
func (s *BookingService) Cancel(userID, bookingID uint, clientIP string) (*models.Booking, error) {
	b, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrNotYourBooking
	}
	if b.Status == domain.BookingStatusCancelled {
		return b, nil
	}
	if b.PaymentStatus == domain.BookingPaymentPaid {
		return nil, ErrBookingPaid
	}
	active, err := s.payments.HasActivePayment(bookingID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActivePayment
	}

	b.Status = domain.BookingStatusCancelled
	if err := s.bookings.Update(b); err != nil {
		return nil, err
	}

	s.audit(userID, "booking.cancelled", b.ID, clientIP, "", map[string]any{"reference": b.Reference})
	_ = s.notifs.NotifyBookingCancelled(userID, b.Reference)
	s.logger.Info("booking cancelled", zap.Uint("booking_id", b.ID), zap.String("reference", b.Reference))
	return b, nil
}

func (s *BookingService) audit(userID uint, action string, bookingID uint, ip, userAgent string, meta map[string]any) {
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "booking",
		ResourceID: strconv.Itoa(int(bookingID)),
		IP:         ip,
		UserAgent:  userAgent,
		Metadata:   metaJSON(meta),
	}
	if err := s.audits.Create(entry); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *BookingService) securityLog(userID uint, event, ip, userAgent string, details map[string]any) {
	entry := &models.SecurityLog{
		UserID:    &userID,
		Event:     event,
		Severity:  domain.SeverityCritical,
		IP:        ip,
		UserAgent: userAgent,
		Details:   metaJSON(details),
	}
	if err := s.security.Create(entry); err != nil {
		s.logger.Warn("security log write failed", zap.String("event", event), zap.Error(err))
	}
}

// newBookingReference mints a short reference like VG-9F3A60B21C. A
// collision would surface on the unique index.
func newBookingReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("VG-%s", raw[:10])
}
