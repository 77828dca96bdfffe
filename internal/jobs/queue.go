package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	taskTypeSolve = "gauss:solve"
	queueName     = "gauss"

	// asynq 側のタイムアウトはワーカー自身の時間上限より少し長くする
	taskTimeoutGrace = time.Minute
)

// QueueLauncher はジョブを Asynq のキューに投入します。
// キューを処理する QueueServer は別プロセスで動いていても構いません。
type QueueLauncher struct {
	client      *asynq.Client
	taskTimeout time.Duration
}

var _ Launcher = (*QueueLauncher)(nil)

// NewQueueLauncher は QueueLauncher を作成します。
func NewQueueLauncher(client *asynq.Client, jobTimeout time.Duration) (*QueueLauncher, error) {
	if client == nil {
		return nil, errors.New("client is nil")
	}
	return &QueueLauncher{
		client:      client,
		taskTimeout: jobTimeout + taskTimeoutGrace,
	}, nil
}

// Launch はジョブをキューに投入します。再試行はしません（終端状態はワーカーが必ず書き込むため）。
func (q *QueueLauncher) Launch(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	t := asynq.NewTask(taskTypeSolve, body,
		asynq.Queue(queueName),
		asynq.TaskID(task.JobID),
		asynq.MaxRetry(0),
		asynq.Timeout(q.taskTimeout),
	)
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", task.JobID, err)
	}
	return nil
}

// QueueServer は Asynq のワーカーサーバーです。受け取ったジョブを Runner で実行します。
type QueueServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner Runner
	logger zerolog.Logger
}

// NewQueueServer は QueueServer を初期化します。
func NewQueueServer(opt asynq.RedisConnOpt, concurrency int, runner Runner, logger zerolog.Logger) (*QueueServer, error) {
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	logger = logger.With().Str("component", "queue").Logger()
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: asynqLogger{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	qs := &QueueServer{
		server: server,
		mux:    mux,
		runner: runner,
		logger: logger,
	}
	mux.HandleFunc(taskTypeSolve, qs.handleSolve)
	return qs, nil
}

// Run はサーバーを起動し、ctx が終わるまでブロックします。
// 停止時は実行中のタスクの完了を待ちます。
func (s *QueueServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}

func (s *QueueServer) handleSolve(ctx context.Context, t *asynq.Task) error {
	var task Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if task.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}
	return s.runner.Run(ctx, task)
}

// asynqLogger は asynq.Logger を zerolog に橋渡しします。
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
