package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BatchReport describes the batch that just finished, for pacers that adapt.
type BatchReport struct {
	Index     int
	Items     int
	APIErrors int
}

// Pacer is awaited between two batches of the same job.
type Pacer interface {
	Wait(ctx context.Context, r BatchReport) error
}

// FixedPacer sleeps the same delay between every pair of batches.
type FixedPacer struct {
	Delay time.Duration
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewFixedPacer(delay time.Duration) *FixedPacer {
	return &FixedPacer{Delay: delay, Sleep: sleep}
}

func (p *FixedPacer) Wait(ctx context.Context, _ BatchReport) error {
	if p.Delay <= 0 {
		return nil
	}
	return p.Sleep(ctx, p.Delay)
}

// AdaptivePacer is a token bucket releasing one batch per interval, measured
// from the end of the previous batch. The interval doubles after a batch that
// hit API errors, up to max, and halves back toward base after a clean batch.
type AdaptivePacer struct {
	mu       sync.Mutex
	base     time.Duration
	max      time.Duration
	interval time.Duration
	limiter  *rate.Limiter
}

func NewAdaptivePacer(base, ceiling time.Duration) *AdaptivePacer {
	if ceiling < base {
		ceiling = base
	}
	return &AdaptivePacer{base: base, max: ceiling, interval: base, limiter: drained(base)}
}

func (p *AdaptivePacer) Wait(ctx context.Context, r BatchReport) error {
	p.mu.Lock()
	switch {
	case r.APIErrors > 0:
		p.interval *= 2
		if p.interval > p.max {
			p.interval = p.max
		}
	case p.interval > p.base:
		p.interval /= 2
		if p.interval < p.base {
			p.interval = p.base
		}
	}
	// tokens refilled while the batch ran do not count
	p.limiter = drained(p.interval)
	l := p.limiter
	p.mu.Unlock()

	return l.Wait(ctx)
}

func drained(every time.Duration) *rate.Limiter {
	l := rate.NewLimiter(rate.Every(every), 1)
	l.Allow()
	return l
}

// Interval is the current spacing between batch starts.
func (p *AdaptivePacer) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
