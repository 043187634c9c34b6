package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/lock"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
)

// Executor runs single delivery jobs.
type Executor struct {
	cfg       Config
	queue     Queue
	transport Transport
	locker    lock.Locker
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes an Executor, Submitter or Worker.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the job id generator used by Submitter.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config, queue Queue, transport Transport, locker lock.Locker, logger *slog.Logger, opts ...Option) *Executor {
	o := buildOptions(opts)
	return &Executor{
		cfg:       cfg.withDefaults(),
		queue:     queue,
		transport: transport,
		locker:    locker,
		logger:    logutil.NoopIfNil(logger),
		now:       o.now,
	}
}

// Config returns the effective configuration, defaults applied.
func (e *Executor) Config() Config {
	return e.cfg
}

// Execute runs one attempt of job.
//
// The job is claimed and reloaded from the queue first, so a duplicate
// concurrent call for the same id ends as OutcomeSkipped without reaching
// the transport. A non-nil error means the queue could not record the
// outcome; the returned Outcome is what the executor decided.
func (e *Executor) Execute(ctx context.Context, job Job) (Outcome, error) {
	log := e.logger.With("job_id", job.ID)

	lease, err := e.locker.TryAcquire(ctx, claimKey(job.ID), e.cfg.ClaimTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			log.Debug("delivery job claimed elsewhere")
			return e.done(OutcomeSkipped), nil
		}
		return OutcomeSkipped, fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release delivery claim", "error", err)
		}
	}()

	current, err := e.queue.Get(ctx, job.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("delivery job no longer queued")
			return e.done(OutcomeSkipped), nil
		}
		return OutcomeSkipped, fmt.Errorf("load job %s: %w", job.ID, err)
	}

	now := e.now()
	if now.Sub(current.LastRun) <= e.cfg.Interval {
		return e.done(OutcomeSkipped), nil
	}

	sendErr := attempt(ctx, e.transport, current.Share)
	if sendErr == nil {
		if err := e.queue.Remove(ctx, current.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return OutcomeDelivered, fmt.Errorf("remove delivered job %s: %w", current.ID, err)
		}
		log.Info("share delivered", "try", current.Try, "share_with", current.Share.ShareWith)
		return e.done(OutcomeDelivered), nil
	}

	next := current.Try + 1
	if next > e.cfg.MaxTry {
		if err := e.queue.Remove(ctx, current.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return OutcomeAbandoned, fmt.Errorf("remove abandoned job %s: %w", current.ID, err)
		}
		log.Warn("share delivery abandoned",
			"try", current.Try,
			"max_try", e.cfg.MaxTry,
			"share_with", current.Share.ShareWith,
			"error", sendErr)
		return e.done(OutcomeAbandoned), nil
	}

	if err := e.queue.Reschedule(ctx, current.ID, current.Try, next, now); err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			log.Warn("delivery job changed during execution, keeping the other write", "try", next, "error", err)
			return e.done(OutcomeRescheduled), nil
		}
		return OutcomeRescheduled, fmt.Errorf("reschedule job %s: %w", current.ID, err)
	}
	log.Info("share delivery failed, rescheduled", "try", next, "error", sendErr)
	return e.done(OutcomeRescheduled), nil
}

// attempt classifies a failure once: a transport error keeps its kind when it
// has one, anything else (including a non-201 answer) is DeliveryFailed.
func attempt(ctx context.Context, t Transport, share shares.FederatedShareRequest) error {
	res, err := t.Send(ctx, share)
	if err != nil {
		if ocmerr.IsClassified(err) {
			return err
		}
		return ocmerr.Wrap(ocmerr.KindDeliveryFailed, "transport error", err)
	}
	if !res.Acknowledged {
		return ocmerr.New(ocmerr.KindDeliveryFailed, fmt.Sprintf("receiver answered %d", res.StatusCode))
	}
	return nil
}

func (e *Executor) done(o Outcome) Outcome {
	attemptsTotal.WithLabelValues(o.String()).Inc()
	return o
}

func claimKey(id string) string {
	return "delivery:" + id
}
