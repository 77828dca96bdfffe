package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/gauss-forge/internal/jobs"
)

type solveInput struct {
	Matrix [][]float64 `json:"matrix"`
	RHS    []float64   `json:"rhs"`
}

func newSolveCmd() *cobra.Command {
	var (
		file      string
		principal string
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Submit a system from a JSON file and wait for the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			input, err := readSolveInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := openRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			launcher, closeLauncher, err := rt.newLauncher(ctx)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = closeLauncher(closeCtx)
			}()

			manager, err := jobs.NewManager(rt.store, launcher, jobs.ManagerOptions{
				MaxMatrixSize: cfg.MaxMatrixSize,
			}, logger)
			if err != nil {
				return err
			}

			submission, err := manager.Submit(ctx, principal, input.Matrix, input.RHS)
			if err != nil {
				return err
			}

			view, err := manager.WaitTerminal(ctx, submission.JobID, interval)
			if err != nil {
				// 中断されたらジョブにもキャンセルを伝え、終端状態まで待つ
				cancelCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if _, cancelErr := manager.Cancel(cancelCtx, submission.JobID); cancelErr != nil {
					logger.Warn().Err(cancelErr).Str("job_id", submission.JobID).Msg("failed to cancel job")
				}
				if view, err = manager.WaitTerminal(cancelCtx, submission.JobID, interval); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(view); err != nil {
				return err
			}
			if view.Status != jobs.StatusCompleted {
				return fmt.Errorf("job %s finished with status %s", view.JobID, view.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file with matrix and rhs (- for stdin)")
	cmd.Flags().StringVar(&principal, "principal", "cli", "owner recorded in task history")
	cmd.Flags().DurationVar(&interval, "poll", 200*time.Millisecond, "status polling interval")
	return cmd
}

func readSolveInput(stdin io.Reader, path string) (*solveInput, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var input solveInput
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &input, nil
}
