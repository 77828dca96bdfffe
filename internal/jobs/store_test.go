package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/gauss-forge/internal/storage"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(ctx, db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	testJobStoreContract(t, func(t *testing.T) JobStore {
		return newTestSQLiteStore(t)
	})
}

func TestRedisStoreContract(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	testJobStoreContract(t, func(t *testing.T) JobStore {
		rdb, err := storage.OpenRedis(context.Background(), url, storage.RedisOptions{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = rdb.Close() })
		return NewRedisStore(rdb, 0)
	})
}

// testJobStoreContract は JobStore 実装が満たすべき振る舞いを検証します。
func testJobStoreContract(t *testing.T, newStore func(t *testing.T) JobStore) {
	ctx := context.Background()

	create := func(t *testing.T, store JobStore, id string) {
		t.Helper()
		require.NoError(t, store.Create(ctx, &Record{
			JobID:     id,
			Principal: "alice",
			Status:    StatusProcessing,
			Size:      3,
		}))
	}

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		id := uuid.NewString()
		create(t, store, id)

		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, id, record.JobID)
		assert.Equal(t, "alice", record.Principal)
		assert.Equal(t, StatusProcessing, record.Status)
		assert.Equal(t, 3, record.Size)
		assert.Zero(t, record.Progress)
		assert.False(t, record.CancelRequested)
		assert.False(t, record.CreatedAt.IsZero())
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		store := newStore(t)
		id := uuid.NewString()
		create(t, store, id)
		assert.Error(t, store.Create(ctx, &Record{JobID: id, Status: StatusProcessing}))
	})

	t.Run("unknown job", func(t *testing.T) {
		store := newStore(t)
		missing := uuid.NewString()
		record, err := store.Get(ctx, missing)
		require.NoError(t, err)
		assert.Nil(t, record)

		existed, err := store.SetCancelRequested(ctx, missing)
		require.NoError(t, err)
		assert.False(t, existed)

		record, err = store.Get(ctx, missing)
		require.NoError(t, err)
		assert.Nil(t, record, "cancelling an unknown job must not create a record")

		err = store.UpdateStatus(ctx, missing, cancelledUpdate())
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("progress only while processing", func(t *testing.T) {
		store := newStore(t)
		id := uuid.NewString()
		create(t, store, id)

		require.NoError(t, store.UpdateProgress(ctx, id, 42))
		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 42.0, record.Progress)

		require.NoError(t, store.UpdateStatus(ctx, id, failedUpdate("boom")))
		require.NoError(t, store.UpdateProgress(ctx, id, 80))

		record, err = store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusError, record.Status)
		assert.Zero(t, record.Progress)
		assert.Equal(t, "boom", record.ErrorMessage)
	})

	t.Run("terminal state is written once", func(t *testing.T) {
		store := newStore(t)
		id := uuid.NewString()
		create(t, store, id)

		require.NoError(t, store.UpdateStatus(ctx, id, completedUpdate([]float64{1, 2.5, -3})))
		err := store.UpdateStatus(ctx, id, cancelledUpdate())
		assert.ErrorIs(t, err, ErrJobFinished)

		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, record.Status)
		assert.Equal(t, 100.0, record.Progress)
		assert.Equal(t, []float64{1, 2.5, -3}, record.Result)
		assert.Empty(t, record.ErrorMessage)
	})

	t.Run("non terminal status rejected", func(t *testing.T) {
		store := newStore(t)
		id := uuid.NewString()
		create(t, store, id)
		assert.Error(t, store.UpdateStatus(ctx, id, TerminalUpdate{Status: StatusProcessing}))
	})

	t.Run("cancel flag does not change status", func(t *testing.T) {
		store := newStore(t)
		id := uuid.NewString()
		create(t, store, id)

		existed, err := store.SetCancelRequested(ctx, id)
		require.NoError(t, err)
		assert.True(t, existed)
		existed, err = store.SetCancelRequested(ctx, id)
		require.NoError(t, err)
		assert.True(t, existed)

		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, record.CancelRequested)
		assert.Equal(t, StatusProcessing, record.Status)
	})

	t.Run("cancel after completion keeps result", func(t *testing.T) {
		store := newStore(t)
		id := uuid.NewString()
		create(t, store, id)
		require.NoError(t, store.UpdateStatus(ctx, id, completedUpdate([]float64{7})))

		_, err := store.SetCancelRequested(ctx, id)
		require.NoError(t, err)

		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, record.Status)
		assert.Equal(t, []float64{7}, record.Result)
		assert.True(t, record.CancelRequested)
	})
}
