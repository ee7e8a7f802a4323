package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TypePaymentExpire cancels a single pending payment after the
	// configured checkout window.
	TypePaymentExpire = "payment:expire"
	// TypePaymentReconcile sweeps stale pending and processing payments
	// against the provider. Scheduled periodically.
	TypePaymentReconcile = "payment:reconcile"
)

type PaymentExpirePayload struct {
	PaymentID uint `json:"payment_id"`
}

func NewPaymentExpireTask(paymentID uint) (*asynq.Task, error) {
	b, err := json.Marshal(PaymentExpirePayload{PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePaymentExpire, b), nil
}

func NewPaymentReconcileTask() *asynq.Task {
	return asynq.NewTask(TypePaymentReconcile, nil)
}
