package worker

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/sevico/internal/jobs"
)

const (
	resultSucceeded    = "succeeded"
	resultRetried      = "retried"
	resultDeadLettered = "dead_lettered"
	resultExpired      = "expired"
)

// ProcessOne claims and handles at most one job. It reports whether a job was claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.queue.ClaimNext(claimCtx)
	cancel()

	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	w.metrics.IncClaimed()
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	// a claimed job is finished even if shutdown begins mid-send
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	result, err := w.handle(runCtx, j, w.execute(runCtx, j))
	elapsed := time.Since(start)

	w.metrics.ObserveDuration(elapsed)
	if w.prom != nil {
		w.prom.ObserveJob(string(j.Type), result, elapsed)
	}

	return true, err
}

func (w *Worker) handle(ctx context.Context, j jobs.Job, execErr error) (string, error) {
	log := w.logger.With("job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts)

	var perm permanentError

	switch {
	case execErr == nil:
		w.metrics.IncDone()
		log.InfoContext(ctx, "job_succeeded")
		return resultSucceeded, w.queue.MarkDone(ctx, j.ID)

	case errors.Is(execErr, errExpired):
		w.metrics.IncExpired()
		log.InfoContext(ctx, "job_expired_dropped")
		return resultExpired, w.queue.Drop(ctx, j.ID)

	case errors.As(execErr, &perm), j.Attempts+1 >= j.MaxAttempts:
		w.metrics.IncDeadLettered()
		log.ErrorContext(ctx, "job_dead_lettered", "err", execErr)
		return resultDeadLettered, w.queue.MarkFailed(ctx, j, execErr.Error())

	default:
		delay := w.backoff(j.Attempts)
		w.metrics.IncRetried()
		log.WarnContext(ctx, "job_retry_scheduled", "err", execErr, "delay", delay)
		return resultRetried, w.queue.Reschedule(ctx, j, w.now().Add(delay), execErr.Error())
	}
}
