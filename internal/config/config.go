// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// ジョブストアの種別
const (
	JobStoreRedis  = "redis"
	JobStoreSQLite = "sqlite"
)

// ジョブ実行方式の種別
const (
	JobRunnerLocal = "local"
	JobRunnerQueue = "queue"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // ログレベル (debug, info, warn, error)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ジョブストア設定
	JobStore      string        // redis または sqlite
	RedisURL      string        // ジョブ状態/キュー用Redis接続URL
	JobDBPath     string        // JOB_STORE=sqlite のときのDBファイル
	HistoryDBPath string        // 完了タスク履歴のDBファイル
	JobRecordTTL  time.Duration // ジョブレコードの保持期間（0 は無期限）

	// ジョブ実行設定
	JobRunner             string        // local または queue
	QueueConcurrency      int           // queue ワーカーの並列数
	JobTimeout            time.Duration // 1ジョブあたりの実行時間上限
	MaxMatrixSize         int           // 受け付ける行列の最大次元
	ProgressCacheSize     int           // 進捗キャッシュの最大エントリ数
	TerminalWriteAttempts int           // 終端状態書き込みの最大試行回数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// アプリケーション設定
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		// サーバー設定
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ジョブストア設定
		JobStore:      getEnv("JOB_STORE", JobStoreRedis),
		RedisURL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobDBPath:     getEnv("JOB_DB_PATH", "jobs.db"),
		HistoryDBPath: getEnv("HISTORY_DB_PATH", "history.db"),
		JobRecordTTL:  getEnvAsDuration("JOB_RECORD_TTL", 0),

		// ジョブ実行設定
		JobRunner:             getEnv("JOB_RUNNER", JobRunnerLocal),
		QueueConcurrency:      getEnvAsInt("QUEUE_CONCURRENCY", 4),
		JobTimeout:            getEnvAsDuration("JOB_TIMEOUT", 5*time.Minute),
		MaxMatrixSize:         getEnvAsInt("MAX_MATRIX_SIZE", 2000),
		ProgressCacheSize:     getEnvAsInt("PROGRESS_CACHE_SIZE", 10000),
		TerminalWriteAttempts: getEnvAsInt("TERMINAL_WRITE_ATTEMPTS", 5),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.JobStore {
	case JobStoreRedis, JobStoreSQLite:
	default:
		return fmt.Errorf("JOB_STORE must be %q or %q, got %q", JobStoreRedis, JobStoreSQLite, c.JobStore)
	}
	switch c.JobRunner {
	case JobRunnerLocal, JobRunnerQueue:
	default:
		return fmt.Errorf("JOB_RUNNER must be %q or %q, got %q", JobRunnerLocal, JobRunnerQueue, c.JobRunner)
	}
	// queue 実行では別プロセスのワーカーが同じレコードを更新するため共有ストアが必要
	if c.JobRunner == JobRunnerQueue && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when JOB_RUNNER=%s", JobRunnerQueue)
	}
	if c.JobStore == JobStoreRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when JOB_STORE=%s", JobStoreRedis)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT must be positive")
	}
	if c.MaxMatrixSize <= 0 {
		return fmt.Errorf("MAX_MATRIX_SIZE must be positive")
	}
	if c.TerminalWriteAttempts <= 0 {
		return fmt.Errorf("TERMINAL_WRITE_ATTEMPTS must be positive")
	}

	// ローカル開発では認証設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := cast.ToIntE(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します。
// "90s" のような表記のほか、単位なしの整数はナノ秒ではなく秒として扱います。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := cast.ToInt64E(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := cast.ToDurationE(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
