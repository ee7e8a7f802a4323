package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"go.uber.org/zap"

	"voyago/config"
)

// PaymentSweeper is the slice of the payment service the worker needs.
type PaymentSweeper interface {
	ExpireIfPending(ctx context.Context, paymentID uint) error
	Reconcile(ctx context.Context) error
}

// Worker consumes queued payment tasks.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	payments PaymentSweeper
	logger   *zap.Logger
}

func NewWorker(redisCfg *config.RedisConfig, jobsCfg *config.JobsConfig, payments PaymentSweeper, logger *zap.Logger) *Worker {
	srv := asynq.NewServer(
		redisConnOpt(redisCfg),
		asynq.Config{
			Concurrency: jobsCfg.Concurrency,
			Queues: map[string]int{
				"default": 10,
			},
		},
	)

	w := &Worker{server: srv, payments: payments, logger: logger}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePaymentExpire, w.handlePaymentExpire)
	mux.HandleFunc(TypePaymentReconcile, w.handlePaymentReconcile)
	w.mux = mux

	return w
}

// Run blocks until Shutdown is called.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handlePaymentExpire(ctx context.Context, t *asynq.Task) error {
	var p PaymentExpirePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("payment expire payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.payments.ExpireIfPending(ctx, p.PaymentID); err != nil {
		w.logger.Error("payment expiry failed", zap.Uint("payment_id", p.PaymentID), zap.Error(err))
		return err
	}
	return nil
}

func (w *Worker) handlePaymentReconcile(ctx context.Context, _ *asynq.Task) error {
	if err := w.payments.Reconcile(ctx); err != nil {
		w.logger.Error("payment reconciliation failed", zap.Error(err))
		return err
	}
	return nil
}

// Scheduler enqueues the periodic reconciliation sweep.
type Scheduler struct {
	inner  *asynq.Scheduler
	logger *zap.Logger
}

func NewScheduler(redisCfg *config.RedisConfig, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	s := asynq.NewScheduler(redisConnOpt(redisCfg), nil)
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.Register(spec, NewPaymentReconcileTask()); err != nil {
		return nil, fmt.Errorf("register reconcile task: %w", err)
	}
	return &Scheduler{inner: s, logger: logger}, nil
}

// Run blocks until Shutdown is called.
func (s *Scheduler) Run() error {
	return s.inner.Run()
}

func (s *Scheduler) Shutdown() {
	s.inner.Shutdown()
}

// StartMonitor serves the asynqmon dashboard. Blocks, intended to run in
// its own goroutine.
func StartMonitor(redisCfg *config.RedisConfig, addr string, logger *zap.Logger) error {
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisConnOpt(redisCfg),
	})

	// Trailing slash so the ServeMux forwards the whole subtree.
	mux := http.NewServeMux()
	mux.Handle(h.RootPath()+"/", h)

	logger.Info("task monitor listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
