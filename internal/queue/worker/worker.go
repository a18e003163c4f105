package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geocoder89/sevico/internal/jobs"
	"github.com/geocoder89/sevico/internal/notifications"
	"github.com/geocoder89/sevico/internal/observability"
)

type Queue interface {
	ClaimNext(ctx context.Context) (jobs.Job, error)
	MarkDone(ctx context.Context, id string) error
	Reschedule(ctx context.Context, j jobs.Job, runAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, j jobs.Job, errMsg string) error
	Drop(ctx context.Context, id string) error
}

type Config struct {
	PollInterval time.Duration
	WorkerID     string
	Concurrency  int
	// JobTimeout bounds one delivery attempt. In-flight attempts are allowed
	// to finish after shutdown starts.
	JobTimeout time.Duration
}

// Worker drains the notification retry queue, resending through the mail transport.
type Worker struct {
	cfg       Config
	queue     Queue
	transport notifications.Notifier
	logger    *slog.Logger
	metrics   *observability.JobMetrics
	prom      *observability.Prom

	backoff func(attempt int) time.Duration
	now     func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, queue Queue, transport notifications.Notifier, logger *slog.Logger, prom *observability.Prom) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}

	return &Worker{
		cfg:       cfg,
		queue:     queue,
		transport: transport,
		logger:    logger.With("worker_id", cfg.WorkerID),
		metrics:   observability.NewJobMetrics(),
		prom:      prom,
		backoff:   ExponentialBackoff,
		now:       time.Now,
	}
}

func (w *Worker) Metrics() observability.JobMetricsSnapshot {
	return w.metrics.Snapshot()
}

// Run polls with cfg.Concurrency loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	w.logger.InfoContext(ctx, "worker_started", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval)

	g, ctx := errgroup.WithContext(ctx)

	for i := range w.cfg.Concurrency {
		g.Go(func() error {
			w.loop(ctx, i)
			return nil
		})
	}

	err := g.Wait()
	w.logger.Info("worker_stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, slot int) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "worker_step_failed", "slot", slot, "err", err)
		}

		// keep draining while there is work
		if processed {
			timer.Reset(0)
			continue
		}
		timer.Reset(w.cfg.PollInterval)
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) isReady() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// permanentError marks a job that no retry can fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

var errExpired = errors.New("secret expired before delivery")

// execute delivers one job through the transport.
func (w *Worker) execute(ctx context.Context, j jobs.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return permanentError{err}
	}

	if jobs.Expired(payload, w.now()) {
		return errExpired
	}

	switch p := payload.(type) {
	case jobs.VerificationCodePayload:
		return w.transport.SendVerificationCode(ctx, notifications.VerificationCodeInput{
			Email:     p.Email,
			Code:      p.Code,
			ExpiresAt: p.ExpiresAt,
		})
	case jobs.PasswordResetPayload:
		return w.transport.SendPasswordReset(ctx, notifications.PasswordResetInput{
			Email:     p.Email,
			Token:     p.Token,
			ExpiresAt: p.ExpiresAt,
		})
	default:
		return permanentError{jobs.ErrPayloadTypeMismatch}
	}
}
