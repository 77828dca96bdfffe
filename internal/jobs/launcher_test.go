package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, task Task) error

func (f runnerFunc) Run(ctx context.Context, task Task) error { return f(ctx, task) }

func TestLocalLauncherDetachesFromRequestContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool

	launcher, err := NewLocalLauncher(context.Background(), runnerFunc(func(ctx context.Context, task Task) error {
		close(started)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}), zerolog.Nop())
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, launcher.Launch(reqCtx, Task{JobID: "job-1"}))
	<-started
	// リクエストが終わってもジョブは続く
	cancel()
	close(release)

	require.NoError(t, launcher.Close(context.Background()))
	assert.False(t, sawCancel.Load())
}

func TestLocalLauncherCloseWaitsForJobs(t *testing.T) {
	var finished atomic.Int32
	launcher, err := NewLocalLauncher(context.Background(), runnerFunc(func(ctx context.Context, task Task) error {
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
		return nil
	}), zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, launcher.Launch(context.Background(), Task{JobID: "job"}))
	}
	require.NoError(t, launcher.Close(context.Background()))
	assert.Equal(t, int32(3), finished.Load())

	assert.ErrorIs(t, launcher.Launch(context.Background(), Task{JobID: "late"}), ErrLauncherClosed)
}

func TestLocalLauncherCloseInterruptsOnDeadline(t *testing.T) {
	started := make(chan struct{})
	launcher, err := NewLocalLauncher(context.Background(), runnerFunc(func(ctx context.Context, task Task) error {
		close(started)
		<-ctx.Done()
		return nil
	}), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, launcher.Launch(context.Background(), Task{JobID: "job-1"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, launcher.Close(ctx), context.DeadlineExceeded)
}
