package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/cronos/internal/config"
	"github.com/SirClappington/cronos/internal/logging"
	"github.com/SirClappington/cronos/internal/queue"
	"github.com/SirClappington/cronos/internal/storage"
	"github.com/SirClappington/cronos/internal/trigger"
)

const (
	leaderLockID = 42
	drainLimit   = 100
	wakeRetry    = time.Second
)

func main() {
	cfg := config.Load()
	log, err := logging.New(cfg.Dev(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	// advisory locks are per session: keep one connection for leadership
	leader := &elector{id: leaderLockID, acquire: func(ctx context.Context) (lockConn, error) {
		c, err := db.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}}
	defer leader.Close()

	store := storage.New(db, cfg.BlacklistCooldown)
	client := trigger.NewClient(cfg.WorkerURL, []byte(cfg.WorkerJWTSecret), cfg.RunLockTTL, log.Named("trigger"))

	kick := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.RedisAddr != "" {
		rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		wake := queue.NewSignal(rdb)
		g.Go(func() error { return listenWake(gctx, wake, kick, log) })
	}

	g.Go(func() error {
		tick := time.NewTicker(cfg.SchedInterval)
		defer tick.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
			case <-kick:
			}

			ok, err := leader.IsLeader(gctx)
			if err != nil {
				log.Error("leader lock", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			now := time.Now().UTC()
			if n, err := store.ReapStale(gctx, now.Add(-cfg.StaleAfter), now); err != nil {
				log.Error("reap stale jobs", zap.Error(err))
			} else if n > 0 {
				log.Warn("failed stale jobs", zap.Int64("count", n))
			}

			ran, err := client.Drain(gctx, drainLimit)
			if err != nil {
				log.Error("drain job queue", zap.Error(err), zap.Int("ran", ran))
				continue
			}
			if ran > 0 {
				log.Info("job queue drained", zap.Int("ran", ran))
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped with error", zap.Error(err))
	}
}

// listenWake forwards Redis wake-ups to kick without ever blocking on it.
func listenWake(ctx context.Context, s *queue.Signal, kick chan<- struct{}, log *zap.Logger) error {
	for ctx.Err() == nil {
		jobID, err := s.Wait(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("wait for wake-up", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wakeRetry):
			}
			continue
		}
		if jobID == "" {
			continue
		}
		select {
		case kick <- struct{}{}:
		default:
		}
	}
	return nil
}
