// Package delivery pushes outbound shares to their receivers and retries
// failed pushes from a durable queue.
//
// A queued Job is Active until it is either acknowledged by the receiver
// (HTTP 201) or has failed more than MaxTry times; then it is removed and
// Retired. Executions are gated by Interval since the job's last run and are
// serialized per job id through a lock.Locker claim.
package delivery

import (
	"context"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
)

// Defaults for Config.
const (
	DefaultMaxTry   = 20
	DefaultInterval = 600 * time.Second
	DefaultClaimTTL = 5 * time.Minute
)

// Config bounds the retry behaviour.
type Config struct {
	// MaxTry is the number of failed retries after which a job is abandoned.
	MaxTry int
	// Interval is the minimum time between two runs of the same job.
	Interval time.Duration
	// ClaimTTL bounds how long one execution may hold a job's claim. It
	// must exceed the transport timeout.
	ClaimTTL time.Duration
}

// DefaultConfig returns MaxTry 20 and Interval 600s.
func DefaultConfig() Config {
	return Config{MaxTry: DefaultMaxTry, Interval: DefaultInterval, ClaimTTL: DefaultClaimTTL}
}

func (c Config) withDefaults() Config {
	if c.MaxTry <= 0 {
		c.MaxTry = DefaultMaxTry
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = DefaultClaimTTL
	}
	return c
}

// Job is a queued delivery.
type Job struct {
	ID      string
	Share   shares.FederatedShareRequest
	LastRun time.Time
	Try     int
}

// SendResult is what the receiver answered.
type SendResult struct {
	StatusCode int
	// Acknowledged is true only for HTTP 201.
	Acknowledged bool
}

// Transport delivers a share to its receiver. Timeouts are the transport's
// responsibility.
type Transport interface {
	Send(ctx context.Context, share shares.FederatedShareRequest) (SendResult, error)
}

// Queue is the durable job storage. Get and Reschedule report a missing job
// with store.ErrNotFound; Reschedule reports a try mismatch with
// store.ErrConflict.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	// Due lists up to limit jobs whose LastRun is before the given time,
	// oldest first.
	Due(ctx context.Context, before time.Time, limit int) ([]Job, error)
	// Reschedule sets Try and LastRun in one conditional write that only
	// applies while the stored Try equals expectTry.
	Reschedule(ctx context.Context, id string, expectTry, try int, lastRun time.Time) error
	Remove(ctx context.Context, id string) error
}

// State is the lifecycle state of a job after an execution.
type State int

const (
	StateActive State = iota
	StateRetired
)

func (s State) String() string {
	if s == StateRetired {
		return "retired"
	}
	return "active"
}

// Outcome is the result of one Execute call.
type Outcome int

const (
	// OutcomeSkipped means nothing was sent. The job was claimed elsewhere,
	// already gone, or not yet due.
	OutcomeSkipped Outcome = iota
	OutcomeDelivered
	OutcomeAbandoned
	// OutcomeRescheduled means an attempt was sent and failed. The job stays
	// queued; if another writer changed the record first, its write stands.
	OutcomeRescheduled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeRescheduled:
		return "rescheduled"
	}
	return "skipped"
}

// State maps the outcome onto the job lifecycle.
func (o Outcome) State() State {
	switch o {
	case OutcomeDelivered, OutcomeAbandoned:
		return StateRetired
	}
	return StateActive
}
