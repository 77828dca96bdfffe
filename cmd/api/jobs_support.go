package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/gauss-forge/internal/config"
	"github.com/yourusername/gauss-forge/internal/history"
	"github.com/yourusername/gauss-forge/internal/jobs"
	"github.com/yourusername/gauss-forge/internal/storage"
)

// runtime はコマンド間で共有する依存関係の束です。
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   jobs.JobStore
	history *history.Store
	worker  *jobs.Worker
	closers []func() error
}

func openRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			rt.Close()
		}
	}()

	switch cfg.JobStore {
	case config.JobStoreSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.JobDBPath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		if rt.store, err = jobs.NewSQLiteStore(ctx, db); err != nil {
			return nil, err
		}
	default:
		rdb, err := storage.OpenRedis(ctx, cfg.RedisURL, storage.RedisOptions{})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rdb.Close)
		rt.store = jobs.NewRedisStore(rdb, cfg.JobRecordTTL)
	}

	histDB, err := storage.OpenSQLite(ctx, cfg.HistoryDBPath)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, histDB.Close)
	if rt.history, err = history.NewStore(ctx, histDB); err != nil {
		return nil, err
	}

	progress := jobs.NewProgressReporter(rt.store, cfg.ProgressCacheSize, logger)
	rt.worker, err = jobs.NewWorker(rt.store, progress, rt.history, jobs.WorkerOptions{
		Timeout:               cfg.JobTimeout,
		TerminalWriteAttempts: cfg.TerminalWriteAttempts,
	}, logger)
	if err != nil {
		return nil, err
	}
	ready = true
	return rt, nil
}

// newLauncher は JOB_RUNNER に応じたランチャーと、その停止関数を返します。
func (rt *runtime) newLauncher(ctx context.Context) (jobs.Launcher, func(context.Context) error, error) {
	switch rt.cfg.JobRunner {
	case config.JobRunnerQueue:
		opt, err := asynq.ParseRedisURI(rt.cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := asynq.NewClient(opt)
		launcher, err := jobs.NewQueueLauncher(client, rt.cfg.JobTimeout)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return launcher, func(context.Context) error { return client.Close() }, nil
	default:
		launcher, err := jobs.NewLocalLauncher(ctx, rt.worker, rt.logger)
		if err != nil {
			return nil, nil, err
		}
		return launcher, launcher.Close, nil
	}
}

// Close は開いた接続を逆順に閉じます。
func (rt *runtime) Close() {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn().Err(err).Msg("failed to close resources")
	}
}
