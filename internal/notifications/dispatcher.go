package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/sevico/internal/jobs"
	"github.com/geocoder89/sevico/internal/observability"
)

const (
	resultSent     = "sent"
	resultFailed   = "failed"
	resultQueued   = "queued"
	resultDropped  = "dropped"
	firstRetryWait = 2 * time.Second
)

type Enqueuer interface {
	Enqueue(ctx context.Context, j jobs.Job) error
}

// Dispatcher is the Notifier handed to the auth service. It sends through the
// transport once; a failed send becomes a retry job and is never returned.
type Dispatcher struct {
	transport   Notifier
	queue       Enqueuer
	prom        *observability.Prom
	logger      *slog.Logger
	maxAttempts int
}

// NewDispatcher accepts a nil queue, in which case failed sends are only logged.
func NewDispatcher(transport Notifier, queue Enqueuer, prom *observability.Prom, logger *slog.Logger, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		transport:   transport,
		queue:       queue,
		prom:        prom,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

func (d *Dispatcher) SendVerificationCode(ctx context.Context, in VerificationCodeInput) error {
	err := d.transport.SendVerificationCode(ctx, in)
	if err == nil {
		d.observe(KindVerificationCode, resultSent)
		return nil
	}

	d.retryLater(ctx, KindVerificationCode, in.Email, err, jobs.JobEmailVerificationCode, jobs.VerificationCodePayload{
		Email:     in.Email,
		Code:      in.Code,
		ExpiresAt: in.ExpiresAt,
	})
	return nil
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, in PasswordResetInput) error {
	err := d.transport.SendPasswordReset(ctx, in)
	if err == nil {
		d.observe(KindPasswordReset, resultSent)
		return nil
	}

	d.retryLater(ctx, KindPasswordReset, in.Email, err, jobs.JobEmailPasswordReset, jobs.PasswordResetPayload{
		Email:     in.Email,
		Token:     in.Token,
		ExpiresAt: in.ExpiresAt,
	})
	return nil
}

func (d *Dispatcher) retryLater(ctx context.Context, kind, email string, sendErr error, t jobs.JobType, payload any) {
	d.observe(kind, resultFailed)
	d.logger.WarnContext(ctx, "notification_send_failed", "kind", kind, "email", email, "err", sendErr)

	if d.queue == nil {
		d.observe(kind, resultDropped)
		return
	}

	j, err := jobs.Encode(t, payload, time.Now().Add(firstRetryWait), d.maxAttempts)
	if err != nil {
		d.observe(kind, resultDropped)
		d.logger.ErrorContext(ctx, "notification_retry_encode_failed", "kind", kind, "email", email, "err", err)
		return
	}
	// the first attempt already happened here
	j.Attempts = 1
	lastErr := sendErr.Error()
	j.LastError = &lastErr

	if err := d.queue.Enqueue(ctx, j); err != nil {
		d.observe(kind, resultDropped)
		d.logger.ErrorContext(ctx, "notification_retry_enqueue_failed", "kind", kind, "email", email, "job_id", j.ID, "err", err)
		return
	}

	d.observe(kind, resultQueued)
	d.logger.InfoContext(ctx, "notification_retry_queued", "kind", kind, "email", email, "job_id", j.ID, "run_at", j.RunAt)
}

func (d *Dispatcher) observe(kind, result string) {
	if d.prom != nil {
		d.prom.ObserveNotification(kind, result)
	}
}
