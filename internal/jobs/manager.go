package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/gauss-forge/internal/gauss"
)

// ManagerOptions は Manager の設定です。
type ManagerOptions struct {
	MaxMatrixSize int // 受け付ける行列の最大次元
}

// Manager はジョブの投入と状態参照・キャンセルを担います。
// 状態はすべて JobStore から読み出すので、どのAPIプロセスから呼んでも同じ結果になります。
type Manager struct {
	store    JobStore
	gate     *CancellationGate
	launcher Launcher
	opts     ManagerOptions
	newID    func() string
	logger   zerolog.Logger
}

// NewManager は Manager を初期化します。
func NewManager(store JobStore, launcher Launcher, opts ManagerOptions, logger zerolog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if launcher == nil {
		return nil, errors.New("launcher is nil")
	}
	if opts.MaxMatrixSize <= 0 {
		return nil, errors.New("opts.MaxMatrixSize must be positive")
	}
	return &Manager{
		store:    store,
		gate:     NewCancellationGate(store),
		launcher: launcher,
		opts:     opts,
		newID:    uuid.NewString,
		logger:   logger.With().Str("component", "manager").Logger(),
	}, nil
}

// Submit は入力を検証し、ジョブレコードを作成してワーカーを起動します。完了は待ちません。
// 検証に失敗した場合は *gauss.ValidationError を返し、レコードは作成しません。
func (m *Manager) Submit(ctx context.Context, principal string, matrix [][]float64, rhs []float64) (*Submission, error) {
	if err := gauss.Validate(matrix, rhs, m.opts.MaxMatrixSize); err != nil {
		return nil, err
	}

	jobID := m.newID()
	record := &Record{
		JobID:     jobID,
		Principal: principal,
		Status:    StatusProcessing,
		Progress:  0,
		Size:      len(matrix),
	}
	if err := m.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	task := Task{
		JobID:     jobID,
		Principal: principal,
		Matrix:    matrix,
		RHS:       rhs,
	}
	if err := m.launcher.Launch(ctx, task); err != nil {
		// 起動できなかったジョブを processing のまま残さない
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalTimeout)
		defer cancel()
		if failErr := m.store.UpdateStatus(failCtx, jobID, failedUpdate("failed to start job")); failErr != nil {
			m.logger.Error().Err(failErr).Str("job_id", jobID).Msg("failed to mark unlaunched job as error")
		}
		return nil, fmt.Errorf("failed to launch job %s: %w", jobID, err)
	}

	m.logger.Info().Str("job_id", jobID).Str("principal", principal).Int("size", len(matrix)).Msg("job submitted")
	return &Submission{JobID: jobID, Status: StatusProcessing}, nil
}

// Status はジョブの現在の状態と進捗を返します。存在しない場合は nil, nil です。
// キャンセル要求済みでもワーカーが終端状態を書き込むまでは processing のままです。
func (m *Manager) Status(ctx context.Context, jobID string) (*StatusView, error) {
	record, err := m.store.Get(ctx, jobID)
	if err != nil || record == nil {
		return nil, err
	}
	return &StatusView{
		JobID:           record.JobID,
		Status:          record.Status,
		Progress:        record.Progress,
		CancelRequested: record.CancelRequested,
		UpdatedAt:       record.UpdatedAt,
	}, nil
}

// Result はジョブの結果を返します。完了を待つことはありません。存在しない場合は nil, nil です。
func (m *Manager) Result(ctx context.Context, jobID string) (*ResultView, error) {
	record, err := m.store.Get(ctx, jobID)
	if err != nil || record == nil {
		return nil, err
	}
	view := &ResultView{
		JobID:  record.JobID,
		Status: record.Status,
	}
	switch record.Status {
	case StatusCompleted:
		view.Solution = record.Result
	case StatusError:
		view.Error = record.ErrorMessage
	}
	return view, nil
}

// Cancel はキャンセル要求を記録します。状態の遷移はワーカーが次のチェックポイントで行います。
// 終端状態のジョブや存在しないジョブに対しても受け付けます。
func (m *Manager) Cancel(ctx context.Context, jobID string) (*CancelAck, error) {
	if err := m.gate.RequestCancel(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to request cancellation: %w", err)
	}
	m.logger.Info().Str("job_id", jobID).Msg("cancellation requested")
	return &CancelAck{JobID: jobID, Accepted: true}, nil
}

// WaitTerminal は終端状態になるまで interval ごとにストアを参照します。
// 同期的に結果を待ちたい CLI やテスト向けです。
func (m *Manager) WaitTerminal(ctx context.Context, jobID string, interval time.Duration) (*ResultView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		view, err := m.Result(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if view == nil {
			return nil, ErrJobNotFound
		}
		if view.Status.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
