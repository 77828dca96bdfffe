// Package jobs は非同期ジョブ管理機能を提供します。
//
// ジョブの状態は JobStore にだけ保存され、投入したプロセスとワーカーの
// メモリは共有しません。別プロセスからの状態参照とキャンセルはすべて
// ストア経由で行われ、ワーカーはチェックポイントでそれを確認します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/gauss-forge/internal/gauss"
	"github.com/yourusername/gauss-forge/internal/history"
)

// 進捗の割り当て
//   - 受付済み・開始:       5%
//   - 前進消去:       5 → 70%
//   - 後退代入:      70 → 100% 未満（100 は completed と同時に書き込む）
const (
	startedPercent  = 5
	forwardSpan     = 65
	backStart       = startedPercent + forwardSpan
	backSpan        = 100 - backStart
	terminalTimeout = 10 * time.Second
)

// Runner は1ジョブを最後まで実行します。
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// HistoryAppender は完了タスクの追記先です。
type HistoryAppender interface {
	Append(ctx context.Context, task history.CompletedTask) (int64, error)
}

// WorkerOptions はワーカーの動作設定です。
type WorkerOptions struct {
	Timeout               time.Duration // ジョブ全体の実行時間上限
	TerminalWriteAttempts int           // 終端状態書き込みの最大試行回数
	RetryBaseDelay        time.Duration // 再試行の初回待ち時間（以降倍々）
}

// Worker はガウスの消去法をチェックポイント付きで実行し、結果をストアに書き込みます。
type Worker struct {
	store    JobStore
	gate     *CancellationGate
	progress *ProgressReporter
	history  HistoryAppender
	opts     WorkerOptions
	now      func() time.Time
	logger   zerolog.Logger
}

var _ Runner = (*Worker)(nil)

// NewWorker は Worker を初期化します。history が nil の場合は履歴を保存しません。
func NewWorker(store JobStore, progress *ProgressReporter, hist HistoryAppender, opts WorkerOptions, logger zerolog.Logger) (*Worker, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if progress == nil {
		return nil, errors.New("progress is nil")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("opts.Timeout must be positive")
	}
	if opts.TerminalWriteAttempts <= 0 {
		opts.TerminalWriteAttempts = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	return &Worker{
		store:    store,
		gate:     NewCancellationGate(store),
		progress: progress,
		history:  hist,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With().Str("component", "worker").Logger(),
	}, nil
}

// Run はジョブを実行し、必ず1回だけ終端状態を書き込みます。
// 返すエラーは終端状態を書き込めなかった場合のみです。計算上の失敗はストアに記録されます。
func (w *Worker) Run(ctx context.Context, task Task) (err error) {
	logger := w.logger.With().Str("job_id", task.JobID).Int("size", len(task.Matrix)).Logger()
	start := w.now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("worker panicked")
			_, err = w.finish(ctx, logger, task.JobID, failedUpdate(fmt.Sprintf("internal error: %v", rec)))
		}
	}()

	logger.Info().Msg("job started")
	w.progress.Update(ctx, task.JobID, startedPercent, len(task.Matrix))

	raw, solveErr := gauss.Solve(task.Matrix, task.RHS, w.checkpoint(ctx, task, start))

	var timeoutErr *TimeoutError
	var singularErr *gauss.SingularError
	switch {
	case solveErr == nil:
		solution := gauss.RoundSolution(raw)
		written, err := w.finish(ctx, logger, task.JobID, completedUpdate(solution))
		if err != nil || !written {
			return err
		}
		logger.Info().Dur("elapsed", w.now().Sub(start)).Msg("job completed")
		w.appendHistory(ctx, logger, task, solution)
		return nil
	case errors.Is(solveErr, ErrCancelled):
		logger.Info().Msg("job cancelled")
		_, err := w.finish(ctx, logger, task.JobID, cancelledUpdate())
		return err
	case errors.As(solveErr, &timeoutErr):
		logger.Warn().Dur("limit", timeoutErr.Limit).Msg("job timed out")
	case errors.As(solveErr, &singularErr):
		logger.Info().Int("row", singularErr.Row).Msg("matrix is singular")
	default:
		logger.Warn().Err(solveErr).Msg("job failed")
	}
	_, err = w.finish(ctx, logger, task.JobID, failedUpdate(solveErr.Error()))
	return err
}

// checkpoint はキャンセル確認→時間上限確認→進捗報告の順に行うチェックポイントを返します。
// 時間上限を確認するのはここだけです。
func (w *Worker) checkpoint(ctx context.Context, task Task, start time.Time) gauss.Checkpoint {
	return func(step gauss.Step) error {
		cancelled, err := w.gate.IsCancelled(ctx, task.JobID)
		if err != nil {
			w.logger.Warn().Err(err).Str("job_id", task.JobID).Msg("failed to read cancel flag")
		}
		if cancelled {
			return ErrCancelled
		}
		if w.now().Sub(start) > w.opts.Timeout {
			return &TimeoutError{Limit: w.opts.Timeout}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker interrupted: %w", err)
		}
		if step.Phase != gauss.PhaseCommit {
			w.progress.Update(ctx, task.JobID, stepPercent(step), step.N)
		}
		return nil
	}
}

// stepPercent はチェックポイント位置を全体の進捗率に変換します。
func stepPercent(step gauss.Step) float64 {
	if step.N <= 0 {
		return startedPercent
	}
	frac := float64(step.Done) / float64(step.N)
	switch step.Phase {
	case gauss.PhaseForward:
		return startedPercent + forwardSpan*frac
	case gauss.PhaseBack:
		return backStart + backSpan*frac
	default:
		return 100
	}
}

// finish は終端状態を書き込みます。リクエストやタスクのコンテキストが切れていても
// 書き込めるよう切り離したコンテキストを使い、失敗時は指数バックオフで再試行します。
// 既に終端状態だった場合は false, nil を返します。
func (w *Worker) finish(ctx context.Context, logger zerolog.Logger, jobID string, update TerminalUpdate) (bool, error) {
	defer w.progress.Forget(jobID)

	err := w.retry(ctx, func(ctx context.Context) error {
		return w.store.UpdateStatus(ctx, jobID, update)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrJobFinished):
		logger.Warn().Str("status", string(update.Status)).Msg("job was already finished")
		return false, nil
	default:
		logger.Error().Err(err).Str("status", string(update.Status)).Msg("failed to write terminal state")
		return false, fmt.Errorf("failed to write terminal state of job %s: %w", jobID, err)
	}
}

func (w *Worker) appendHistory(ctx context.Context, logger zerolog.Logger, task Task, solution []float64) {
	if w.history == nil {
		return
	}
	entry := history.CompletedTask{
		Principal: task.Principal,
		Input:     history.Input{Matrix: task.Matrix, RHS: task.RHS},
		Output: history.Output{
			TaskID:   task.JobID,
			Status:   string(StatusCompleted),
			Solution: solution,
		},
		CreatedAt: w.now().UTC(),
	}
	err := w.retry(ctx, func(ctx context.Context) error {
		_, err := w.history.Append(ctx, entry)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to append task history")
	}
}

// retry は fn を最大 TerminalWriteAttempts 回実行します。
// ErrJobFinished と ErrJobNotFound は再試行しても結果が変わらないので即座に返します。
func (w *Worker) retry(ctx context.Context, fn func(context.Context) error) error {
	base := context.WithoutCancel(ctx)
	delay := w.opts.RetryBaseDelay

	var err error
	for attempt := 1; attempt <= w.opts.TerminalWriteAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(base, terminalTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil || errors.Is(err, ErrJobFinished) || errors.Is(err, ErrJobNotFound) {
			return err
		}
		if attempt == w.opts.TerminalWriteAttempts {
			break
		}
		w.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("store write failed, retrying")
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
