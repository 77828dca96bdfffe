// Package main は gaussforge コマンドのエントリーポイントです。
//
//	gaussforge serve   APIサーバー（既定）
//	gaussforge worker  キューを処理するワーカー（JOB_RUNNER=queue 用）
//	gaussforge solve   ファイルの連立方程式をジョブとして解き、結果を出力
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourusername/gauss-forge/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gaussforge",
		Short:         "Asynchronous Gaussian elimination service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := newServeCmd()
	root.AddCommand(serve, newWorkerCmd(), newSolveCmd())
	// サブコマンド省略時は serve
	root.RunE = serve.RunE
	return root
}

// loadEnvironment は設定を読み込み、ロガーを組み立てます。
func loadEnvironment() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Error().Err(err).Msg("failed to load config")
		return nil, logger, err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.GinMode == "release" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return logger.Level(level).With().Timestamp().Str("service", "gaussforge").Logger()
}

// signalContext は SIGINT / SIGTERM で終わるコンテキストを返します。
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
