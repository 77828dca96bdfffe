package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Launcher はジョブを呼び出し元のリクエストから切り離して起動します。
// Launch は実行の完了を待たずに戻ります。
type Launcher interface {
	Launch(ctx context.Context, task Task) error
}

// LocalLauncher は同一プロセス内で1ジョブ1ゴルーチンとして実行します。
// ジョブの寿命はリクエストではなくランチャーに紐づきます。
type LocalLauncher struct {
	runner Runner
	logger zerolog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ Launcher = (*LocalLauncher)(nil)

// NewLocalLauncher は LocalLauncher を作成します。
// parent のキャンセルはジョブに伝播しません。実行中ジョブの中断は Close でのみ行います。
func NewLocalLauncher(parent context.Context, runner Runner, logger zerolog.Logger) (*LocalLauncher, error) {
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if parent == nil {
		parent = context.Background()
	}
	base, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &LocalLauncher{
		runner: runner,
		logger: logger.With().Str("component", "launcher").Logger(),
		base:   base,
		cancel: cancel,
	}, nil
}

// Launch はジョブをバックグラウンドで開始します。ctx はリクエストのものでも構いません。
func (l *LocalLauncher) Launch(_ context.Context, task Task) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLauncherClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		if err := l.runner.Run(l.base, task); err != nil {
			l.logger.Error().Err(err).Str("job_id", task.JobID).Msg("job ended without a terminal state")
		}
	}()
	return nil
}

// Close は新規ジョブの受付を止め、実行中のジョブの終了を待ちます。
// ctx が先に終わった場合は実行中のジョブに中断を伝え、終端状態の書き込みを待ってから戻ります。
func (l *LocalLauncher) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.cancel()
		return nil
	case <-ctx.Done():
		l.logger.Warn().Msg("interrupting running jobs")
		l.cancel()
		<-done
		return ctx.Err()
	}
}
