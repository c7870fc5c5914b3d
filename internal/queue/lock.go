package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SirClappington/cronos/internal/domain"
)

const lockKey = "cronos:job-worker:lock"

var releaseScript = r.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Lock is a Redis mutex allowing one worker dispatch at a time. The TTL bounds
// how long a crashed holder blocks the others.
type Lock struct {
	rdb *r.Client
	ttl time.Duration
	log *zap.Logger
}

func NewLock(rdb *r.Client, ttl time.Duration, log *zap.Logger) *Lock {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lock{rdb: rdb, ttl: ttl, log: log}
}

// Acquire takes the lock or returns domain.ErrLockHeld. The release func only
// deletes the key while it still carries this holder's token.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquire run lock")
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	return func() {
		n, err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{lockKey}, token).Int()
		if err != nil {
			l.log.Error("release run lock", zap.Error(err))
			return
		}
		if n == 0 {
			l.log.Warn("run lock expired before release", zap.Duration("ttl", l.ttl))
		}
	}, nil
}
