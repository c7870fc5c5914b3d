// Package dispatch picks the next search job from the work queue and runs it
// batch by batch against the per-company processor.
package dispatch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/cronos/internal/domain"
	"github.com/SirClappington/cronos/internal/storage"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 2000 * time.Millisecond

	maxClaimAttempts = 3
)

// Queue is the work queue the dispatcher reads and updates.
type Queue interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	CountPending(ctx context.Context) (int, error)
	NextPending(ctx context.Context, q storage.PendingQuery) (*domain.Job, error)
	ClaimJob(ctx context.Context, id string, at time.Time) (bool, error)
	SaveProgress(ctx context.Context, id string, p domain.Progress) error
	CompleteJob(ctx context.Context, id string, p domain.Progress, at time.Time) error
	FailJob(ctx context.Context, id string, reason string, at time.Time) error
}

type Blacklist interface {
	IsBlacklisted(ctx context.Context, siren string) (bool, error)
}

// Processor resolves one company. Implementations own blacklist writes for the
// failures they classify.
type Processor interface {
	Process(ctx context.Context, c domain.Company) domain.Outcome
}

// Locker guards a dispatch so only one runs at a time. Acquire returns
// domain.ErrLockHeld when another invocation holds it.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type Options struct {
	BatchSize int
	Policy    Policy
	Pacer     Pacer
	Lock      Locker
	Logger    *zap.Logger
	Now       func() time.Time
}

type Dispatcher struct {
	queue     Queue
	blacklist Blacklist
	processor Processor
	batchSize int
	policy    Policy
	pacer     Pacer
	lock      Locker
	log       *zap.Logger
	now       func() time.Time
}

func New(q Queue, bl Blacklist, p Processor, opts Options) *Dispatcher {
	d := &Dispatcher{
		queue:     q,
		blacklist: bl,
		processor: p,
		batchSize: opts.BatchSize,
		policy:    opts.Policy,
		pacer:     opts.Pacer,
		lock:      opts.Lock,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if d.batchSize <= 0 {
		d.batchSize = DefaultBatchSize
	}
	if d.policy == (Policy{}) {
		d.policy = DefaultPolicy()
	}
	if d.pacer == nil {
		d.pacer = NewFixedPacer(DefaultBatchDelay)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.now == nil {
		d.now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

// Result summarizes one dispatch. Job is nil when the queue had nothing to do.
type Result struct {
	Job *domain.Job
}

// Dispatch selects the next job and runs it to completion. A claim lost to a
// concurrent invocation triggers a fresh selection.
func (d *Dispatcher) Dispatch(ctx context.Context) (Result, error) {
	if d.lock != nil {
		release, err := d.lock.Acquire(ctx)
		if err != nil {
			return Result{}, err
		}
		defer release()
	}

	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		job, err := d.SelectNextJob(ctx)
		if err != nil {
			return Result{}, err
		}
		if job == nil {
			return Result{}, nil
		}

		err = d.RunJob(ctx, job)
		if errors.Is(err, domain.ErrJobClaimed) {
			d.log.Info("job claimed by another invocation, reselecting",
				zap.String("job_id", job.ID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Result{Job: job}, err
		}

		final, err := d.queue.GetJob(ctx, job.ID)
		if err != nil {
			return Result{Job: job}, errors.Wrap(err, "reload finished job")
		}
		return Result{Job: final}, nil
	}
	return Result{}, domain.ErrJobClaimed
}
