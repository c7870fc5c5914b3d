package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"

	"github.com/SirClappington/cronos/internal/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *r.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := r.NewClient(&r.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestLock_Exclusive(t *testing.T) {
	_, rdb := newRedis(t)
	l := NewLock(rdb, time.Minute, nil)
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx); !errors.Is(err, domain.ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}

	release()
	release2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestLock_ExpiredHolderDoesNotReleaseNewHolder(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewLock(rdb, time.Minute, nil)
	ctx := context.Background()

	stale, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	stale()

	if !mr.Exists(lockKey) {
		t.Error("expected new holder's lock to survive the stale release")
	}
}
