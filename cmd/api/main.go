package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/cronos/internal/config"
	"github.com/SirClappington/cronos/internal/dispatch"
	"github.com/SirClappington/cronos/internal/httpapi"
	"github.com/SirClappington/cronos/internal/logging"
	"github.com/SirClappington/cronos/internal/processor"
	"github.com/SirClappington/cronos/internal/queue"
	"github.com/SirClappington/cronos/internal/storage"
)

// store is what the api needs from a storage backend.
type store interface {
	dispatch.Queue
	dispatch.Blacklist
	processor.BlacklistWriter
	httpapi.JobStore
}

func main() {
	cfg := config.Load()
	log, err := logging.New(cfg.Dev(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.EmailFinderURL == "" {
		log.Fatal("EMAIL_FINDER_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		st      store
		closers []func() error
	)
	switch {
	case cfg.PostgresDSN != "":
		db, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		if err := db.Ping(ctx); err != nil {
			log.Fatal("ping postgres", zap.Error(err))
		}
		closers = append(closers, func() error { db.Close(); return nil })
		st = storage.New(db, cfg.BlacklistCooldown)
	case cfg.Dev():
		log.Warn("POSTGRES_DSN not set, using in-memory storage")
		st = storage.NewMemory(cfg.BlacklistCooldown)
	default:
		log.Fatal("POSTGRES_DSN is required outside dev")
	}

	opts := dispatch.Options{
		BatchSize: cfg.BatchSize,
		Policy: dispatch.Policy{
			FairnessThreshold: cfg.FairnessThreshold,
			SmallJobThreshold: cfg.SmallJobThreshold,
		},
		Pacer:  newPacer(cfg),
		Logger: log.Named("dispatch"),
	}
	srv := httpapi.Server{
		Jobs:      st,
		Log:       log.Named("http"),
		JWTSecret: []byte(cfg.WorkerJWTSecret),
	}
	if cfg.RedisAddr != "" {
		rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("connect redis", zap.Error(err))
		}
		closers = append(closers, rdb.Close)
		opts.Lock = queue.NewLock(rdb, cfg.RunLockTTL, log.Named("lock"))
		srv.Waker = queue.NewSignal(rdb)
	}

	finder := processor.NewEmailFinder(cfg.EmailFinderURL, cfg.EmailFinderTimeout, st, log.Named("processor"))
	srv.Dispatcher = dispatch.New(st, st, finder, opts)

	httpSrv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", zap.String("addr", cfg.APIAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RunLockTTL)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	for _, c := range closers {
		err = multierr.Append(err, c())
	}
	if err != nil {
		log.Error("api stopped with error", zap.Error(err))
		return
	}
	log.Info("api stopped")
}

func newPacer(cfg config.Config) dispatch.Pacer {
	if cfg.Pacer == "adaptive" {
		return dispatch.NewAdaptivePacer(cfg.BatchDelay, cfg.MaxBatchDelay)
	}
	return dispatch.NewFixedPacer(cfg.BatchDelay)
}
