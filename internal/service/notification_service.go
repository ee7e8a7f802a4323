package service

import (
	"context"
	"encoding/json"

	"voyago/internal/models"
	"voyago/internal/repository"

	"github.com/shopspring/decimal"
)

type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	fcm      *FCMService
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, fcm *FCMService) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, fcm: fcm}
}

func (s *NotificationService) Notify(userID uint, notifType, title, body string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	err := s.repo.Create(&models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   dataJSON,
	})
	if err != nil {
		return err
	}
	s.SendPush(userID, notifType, title, body, data)
	return nil
}

// SendPush delivers only the FCM push, without writing a Notification row.
// The payment completion path persists its row inside the same transaction
// as the status change and then pushes through here.
func (s *NotificationService) SendPush(userID uint, notifType, title, body string, data map[string]interface{}) {
	if s == nil || s.fcm == nil || s.userRepo == nil {
		return
	}
	u, err := s.userRepo.GetByID(userID)
	if err != nil || u == nil || u.FCMToken == "" {
		return
	}
	_ = s.fcm.SendToUser(context.Background(), u.FCMToken, notifType, title, body, data)
}

func (s *NotificationService) NotifyBookingCreated(userID uint, reference string, total decimal.Decimal) error {
	return s.Notify(userID, "BOOKING_CREATED", "Booking created",
		"Your booking "+reference+" is reserved. Complete the payment to confirm it.",
		map[string]interface{}{"reference": reference, "total": total.String()})
}

func (s *NotificationService) NotifyBookingCancelled(userID uint, reference string) error {
	return s.Notify(userID, "BOOKING_CANCELLED", "Booking cancelled",
		"Your booking "+reference+" has been cancelled.",
		map[string]interface{}{"reference": reference})
}

func (s *NotificationService) NotifyPaymentFailed(userID uint, piPaymentID string) error {
	return s.Notify(userID, "PAYMENT_FAILED", "Payment failed",
		"Your payment could not be completed. You can try again from your booking.",
		map[string]interface{}{"pi_payment_id": piPaymentID})
}

func (s *NotificationService) NotifyRefundIssued(userID uint, piPaymentID string, amount decimal.Decimal) error {
	return s.Notify(userID, "REFUND_ISSUED", "Refund issued",
		"Your refund of "+amount.String()+" Pi is on its way.",
		map[string]interface{}{"pi_payment_id": piPaymentID, "amount": amount.String()})
}
