package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/yourusername/gauss-forge/internal/jobs"
)

func newWorkerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs (JOB_RUNNER=queue)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = cfg.QueueConcurrency
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := openRuntime(ctx, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to initialize runtime")
				return err
			}
			defer rt.Close()

			opt, err := asynq.ParseRedisURI(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			server, err := jobs.NewQueueServer(opt, concurrency, rt.worker, logger)
			if err != nil {
				return err
			}

			logger.Info().Int("concurrency", concurrency).Msg("starting queue worker")
			if err := server.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("queue worker stopped with error")
				return err
			}
			logger.Info().Msg("queue worker stopped")
			return nil
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "number of jobs processed in parallel (default QUEUE_CONCURRENCY)")
	return cmd
}
