package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/SirClappington/cronos/internal/domain"
	"github.com/SirClappington/cronos/internal/storage"
)

// Policy holds the thresholds of the selection tiers.
type Policy struct {
	// FairnessThreshold is the pending depth at or below which small jobs are
	// preferred over older large ones. Above it selection is plain FIFO.
	FairnessThreshold int
	// SmallJobThreshold is the total_count below which a job counts as small.
	SmallJobThreshold int
}

func DefaultPolicy() Policy {
	return Policy{FairnessThreshold: 50, SmallJobThreshold: 20}
}

// SelectNextJob returns the job to run next, or nil when nothing is pending.
// It does not claim the job.
//
// Tiers, first match wins: premium by priority then age; with a shallow
// backlog, small jobs then large jobs by age; otherwise oldest first.
func (d *Dispatcher) SelectNextJob(ctx context.Context) (*domain.Job, error) {
	pending, err := d.queue.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	if pending == 0 {
		return nil, nil
	}

	job, err := d.queue.NextPending(ctx, storage.PendingQuery{Premium: true, Order: storage.ByPriority})
	if err != nil || job != nil {
		return job, err
	}

	small := d.policy.SmallJobThreshold
	if pending <= d.policy.FairnessThreshold {
		for _, size := range []storage.SizeClass{storage.SmallOnly, storage.LargeOnly} {
			job, err := d.queue.NextPending(ctx, storage.PendingQuery{Size: size, SmallBelow: small, Order: storage.ByAge})
			if err != nil || job != nil {
				return job, err
			}
		}
		return nil, nil
	}

	d.log.Debug("backlog above fairness threshold, selecting FIFO",
		zap.Int("pending", pending), zap.Int("threshold", d.policy.FairnessThreshold))
	return d.queue.NextPending(ctx, storage.PendingQuery{Order: storage.ByAge})
}
