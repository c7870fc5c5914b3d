package queue

import (
	"context"
	"time"

	r "github.com/redis/go-redis/v9"
)

const wakeKey = "cronos:job-worker:wake"

// Signal wakes the scheduler when new jobs are enqueued, so it does not have to
// wait for its next tick.
type Signal struct{ rdb *r.Client }

func NewSignal(rdb *r.Client) *Signal { return &Signal{rdb} }

// Wake records one pending wake-up. Repeated wakes collapse into one.
func (s *Signal) Wake(ctx context.Context, jobID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, wakeKey)
	pipe.LPush(ctx, wakeKey, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// Wait blocks up to block for a wake-up. It returns the job id that caused it,
// or "" on timeout.
func (s *Signal) Wait(ctx context.Context, block time.Duration) (string, error) {
	res, err := s.rdb.BRPop(ctx, block, wakeKey).Result()
	if err == r.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) == 2 {
		return res[1], nil
	}
	return "", nil
}
