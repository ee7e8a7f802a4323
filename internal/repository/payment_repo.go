package repository

import (
	"time"

	"voyago/internal/domain"
	"voyago/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByPiPaymentID(piPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("pi_payment_id = ?", piPaymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPendingForBooking returns the caller's open pending payment for a booking.
func (r *PaymentRepository) GetPendingForBooking(bookingID, userID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("booking_id = ? AND user_id = ? AND status = ?",
		bookingID, userID, domain.PaymentStatusPending).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// HasActivePayment reports whether the booking already carries a payment in
// pending, processing, or completed status. Used to reject double-pay.
func (r *PaymentRepository) HasActivePayment(bookingID uint) (bool, error) {
	var c int64
	err := r.db.Model(&models.Payment{}).
		Where("booking_id = ? AND status IN ?", bookingID, []string{
			domain.PaymentStatusPending,
			domain.PaymentStatusProcessing,
			domain.PaymentStatusCompleted,
		}).Count(&c).Error
	return c > 0, err
}

// GetRefundOf returns the refund payment pointing at the given original, if any.
func (r *PaymentRepository) GetRefundOf(originalID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("refund_of_id = ?", originalID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByUserID(userID uint, limit, offset int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").
		Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// ListPendingOlderThan returns pending payments created before the cutoff.
// The expiry sweep cancels these.
func (r *PaymentRepository) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.Where("status = ? AND created_at < ?", domain.PaymentStatusPending, cutoff).
		Limit(limit).Find(&list).Error
	return list, err
}

// ListByStatus returns payments in the given status, oldest first. The
// reconciliation sweep uses it to find stuck processing payments.
func (r *PaymentRepository) ListByStatus(status string, limit int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.Where("status = ?", status).Order("created_at ASC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *PaymentRepository) Update(p *models.Payment) error {
	return r.db.Save(p).Error
}

// CountFailedByUserSince counts recently failed payment attempts for fraud scoring.
func (r *PaymentRepository) CountFailedByUserSince(userID uint, since time.Time) (int64, error) {
	var c int64
	err := r.db.Model(&models.Payment{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, domain.PaymentStatusFailed, since).
		Count(&c).Error
	return c, err
}

// AverageCompletedAmount returns the user's mean completed payment amount,
// zero when the user has no completed payments.
func (r *PaymentRepository) AverageCompletedAmount(userID uint) (float64, error) {
	var row struct{ Avg float64 }
	err := r.db.Model(&models.Payment{}).
		Select("COALESCE(AVG(amount), 0) as avg").
		Where("user_id = ? AND status = ?", userID, domain.PaymentStatusCompleted).
		Scan(&row).Error
	return row.Avg, err
}
