package repository

import (
	"time"

	"voyago/internal/domain"
	"voyago/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DashboardStats struct {
	TotalUsers        int64           `json:"total_users"`
	TotalHotels       int64           `json:"total_hotels"`
	TotalAttractions  int64           `json:"total_attractions"`
	TotalRestaurants  int64           `json:"total_restaurants"`
	TotalBookings     int64           `json:"total_bookings"`
	ConfirmedBookings int64           `json:"confirmed_bookings"`
	TotalPayments     int64           `json:"total_payments"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalCashback     decimal.Decimal `json:"total_cashback"`
	RefundedPayments  int64           `json:"refunded_payments"`
}

type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type RevenuePoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetDashboardStats() (*DashboardStats, error) {
	var s DashboardStats
	r.db.Model(&models.User{}).Count(&s.TotalUsers)
	r.db.Model(&models.Hotel{}).Count(&s.TotalHotels)
	r.db.Model(&models.Attraction{}).Count(&s.TotalAttractions)
	r.db.Model(&models.Restaurant{}).Count(&s.TotalRestaurants)
	r.db.Model(&models.Booking{}).Count(&s.TotalBookings)
	r.db.Model(&models.Booking{}).Where("status = ?", domain.BookingStatusConfirmed).Count(&s.ConfirmedBookings)
	r.db.Model(&models.Payment{}).Count(&s.TotalPayments)
	r.db.Model(&models.Payment{}).Where("status = ?", domain.PaymentStatusRefunded).Count(&s.RefundedPayments)

	var rev struct{ Total decimal.Decimal }
	r.db.Model(&models.Payment{}).Select("COALESCE(SUM(amount), 0) as total").
		Where("status = ? AND refund_of_id IS NULL", domain.PaymentStatusCompleted).Scan(&rev)
	s.TotalRevenue = rev.Total

	var cb struct{ Total decimal.Decimal }
	r.db.Model(&models.RewardTransaction{}).Select("COALESCE(SUM(amount), 0) as total").
		Where("type = ?", domain.RewardTypeCashback).Scan(&cb)
	s.TotalCashback = cb.Total

	return &s, nil
}

// ListUsers returns users with search, role filter, and pagination.
func (r *AdminRepository) ListUsers(search, role string, page, limit int) ([]models.User, int64, error) {
	q := r.db.Model(&models.User{})
	if search != "" {
		q = q.Where("username LIKE ? OR email LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var total int64
	q.Count(&total)
	var users []models.User
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error
	return users, total, err
}

// ListPayments returns payments with optional status filter.
func (r *AdminRepository) ListPayments(status string, page, limit int) ([]models.Payment, int64, error) {
	q := r.db.Model(&models.Payment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	var list []models.Payment
	err := q.Preload("User").Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ListBookings returns bookings with optional status filter.
func (r *AdminRepository) ListBookings(status string, page, limit int) ([]models.Booking, int64, error) {
	q := r.db.Model(&models.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	var list []models.Booking
	err := q.Preload("User").Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// UserSignupsByDay returns daily signup counts for the last N days.
func (r *AdminRepository) UserSignupsByDay(days int) ([]TimeSeriesPoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var points []TimeSeriesPoint
	err := r.db.Model(&models.User{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}

// RevenueByDay returns daily completed payment revenue for the last N days.
func (r *AdminRepository) RevenueByDay(days int) ([]RevenuePoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var points []RevenuePoint
	err := r.db.Model(&models.Payment{}).
		Select("DATE(completed_at) as date, COALESCE(SUM(amount), 0) as amount").
		Where("status = ? AND refund_of_id IS NULL AND completed_at >= ?", domain.PaymentStatusCompleted, since).
		Group("DATE(completed_at)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}

// UpdateUser updates specific fields on a user.
func (r *AdminRepository) UpdateUser(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
}
