package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// Submission reports what happened to a newly submitted share.
type Submission struct {
	// Delivered is true when the first attempt was acknowledged.
	Delivered bool
	// JobID is set when the share was queued for retry.
	JobID string
	// Cause is the classified failure of the first attempt, if any.
	Cause error
}

// Submitter makes the first delivery attempt for a share and queues a retry
// job when it fails.
type Submitter struct {
	queue     Queue
	transport Transport
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewSubmitter creates a submitter.
func NewSubmitter(queue Queue, transport Transport, logger *slog.Logger, opts ...Option) *Submitter {
	o := buildOptions(opts)
	if o.newID == nil {
		o.newID = func() string { return uuid.NewString() }
	}
	return &Submitter{
		queue:     queue,
		transport: transport,
		logger:    logutil.NoopIfNil(logger),
		now:       o.now,
		newID:     o.newID,
	}
}

// Submit sends share once. On failure it enqueues a job with Try 0 and
// LastRun now, so the first retry happens one interval later. The returned
// error is non-nil only when the job could not be queued.
func (s *Submitter) Submit(ctx context.Context, share shares.FederatedShareRequest) (Submission, error) {
	sendErr := attempt(ctx, s.transport, share)
	if sendErr == nil {
		submissionsTotal.WithLabelValues("delivered").Inc()
		return Submission{Delivered: true}, nil
	}

	job := Job{ID: s.newID(), Share: share, LastRun: s.now(), Try: 0}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		submissionsTotal.WithLabelValues("lost").Inc()
		return Submission{Cause: sendErr}, ocmerr.Wrap(ocmerr.KindInternal, "queue delivery job", fmt.Errorf("%w (first attempt: %v)", err, sendErr))
	}

	submissionsTotal.WithLabelValues("queued").Inc()
	s.logger.Info("share delivery queued for retry",
		"job_id", job.ID,
		"share_with", share.ShareWith,
		"kind", ocmerr.KindOf(sendErr).String(),
		"error", sendErr)
	return Submission{JobID: job.ID, Cause: sendErr}, nil
}
