package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueServerHandleSolve(t *testing.T) {
	var got Task
	server := &QueueServer{
		runner: runnerFunc(func(ctx context.Context, task Task) error {
			got = task
			return nil
		}),
		logger: zerolog.Nop(),
	}

	want := Task{
		JobID:     "job-1",
		Principal: "alice",
		Matrix:    [][]float64{{1, 0}, {0, 1}},
		RHS:       []float64{1, 2},
	}
	body, err := json.Marshal(want)
	require.NoError(t, err)

	require.NoError(t, server.handleSolve(context.Background(), asynq.NewTask(taskTypeSolve, body)))
	assert.Equal(t, want, got)
}

func TestQueueServerRejectsBadPayload(t *testing.T) {
	server := &QueueServer{
		runner: runnerFunc(func(ctx context.Context, task Task) error {
			t.Fatal("runner must not be called")
			return nil
		}),
		logger: zerolog.Nop(),
	}

	err := server.handleSolve(context.Background(), asynq.NewTask(taskTypeSolve, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = server.handleSolve(context.Background(), asynq.NewTask(taskTypeSolve, []byte(`{"matrix":[[1]]}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestNewQueueLauncherRequiresClient(t *testing.T) {
	_, err := NewQueueLauncher(nil, 0)
	assert.Error(t, err)
}
