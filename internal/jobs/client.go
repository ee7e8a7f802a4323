package jobs

import (
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"voyago/config"
)

func redisConnOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// Client enqueues background tasks. A nil *Client is safe and drops the
// task, which keeps the payment flow alive when the queue is not wired up
// (tests, local runs without Redis).
type Client struct {
	inner  *asynq.Client
	logger *zap.Logger
}

func NewClient(cfg *config.RedisConfig, logger *zap.Logger) *Client {
	return &Client{
		inner:  asynq.NewClient(redisConnOpt(cfg)),
		logger: logger,
	}
}

// EnqueuePaymentExpiry schedules a one-shot expiry check for the payment
// after the checkout window has passed.
func (c *Client) EnqueuePaymentExpiry(paymentID uint, delay time.Duration) error {
	if c == nil || c.inner == nil {
		return nil
	}
	task, err := NewPaymentExpireTask(paymentID)
	if err != nil {
		return err
	}
	info, err := c.inner.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(3))
	if err != nil {
		return err
	}
	c.logger.Debug("enqueued payment expiry",
		zap.Uint("payment_id", paymentID),
		zap.String("task_id", info.ID),
		zap.Duration("delay", delay))
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
