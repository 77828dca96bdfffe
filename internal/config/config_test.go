package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"JOB_STORE", "JOB_RUNNER", "JOB_TIMEOUT", "MAX_MATRIX_SIZE", "GIN_MODE", "JOB_RECORD_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, JobStoreRedis, cfg.JobStore)
	assert.Equal(t, JobRunnerLocal, cfg.JobRunner)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 2000, cfg.MaxMatrixSize)
	assert.Zero(t, cfg.JobRecordTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("JOB_STORE", "sqlite")
	t.Setenv("JOB_RUNNER", "queue")
	t.Setenv("JOB_TIMEOUT", "90")
	t.Setenv("JOB_RECORD_TTL", "24h")
	t.Setenv("MAX_MATRIX_SIZE", "300")
	t.Setenv("QUEUE_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, JobStoreSQLite, cfg.JobStore)
	assert.Equal(t, JobRunnerQueue, cfg.JobRunner)
	assert.Equal(t, 90*time.Second, cfg.JobTimeout)
	assert.Equal(t, 24*time.Hour, cfg.JobRecordTTL)
	assert.Equal(t, 300, cfg.MaxMatrixSize)
	assert.Equal(t, 4, cfg.QueueConcurrency)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GinMode:               "debug",
			JobStore:              JobStoreRedis,
			JobRunner:             JobRunnerLocal,
			RedisURL:              "redis://localhost:6379/0",
			JobTimeout:            time.Minute,
			MaxMatrixSize:         10,
			TerminalWriteAttempts: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.JobStore = "memcached" }, wantErr: "JOB_STORE"},
		{name: "unknown runner", mutate: func(c *Config) { c.JobRunner = "thread" }, wantErr: "JOB_RUNNER"},
		{name: "queue without redis", mutate: func(c *Config) {
			c.JobStore = JobStoreSQLite
			c.JobRunner = JobRunnerQueue
			c.RedisURL = ""
		}, wantErr: "REDIS_URL"},
		{name: "sqlite without redis", mutate: func(c *Config) {
			c.JobStore = JobStoreSQLite
			c.RedisURL = ""
		}},
		{name: "zero timeout", mutate: func(c *Config) { c.JobTimeout = 0 }, wantErr: "JOB_TIMEOUT"},
		{name: "zero size", mutate: func(c *Config) { c.MaxMatrixSize = 0 }, wantErr: "MAX_MATRIX_SIZE"},
		{name: "release without credentials", mutate: func(c *Config) { c.GinMode = "release" }, wantErr: "APP_USERNAME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
