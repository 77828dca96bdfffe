package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const defaultProgressCacheSize = 10000

// ProgressWriter は進捗の永続化先です。
type ProgressWriter interface {
	UpdateProgress(ctx context.Context, jobID string, percent float64) error
}

// ProgressReporter は計算ループとストアの間に立ち、書き込み頻度を抑えます。
// 値は 0 と 100 のとき、または最後に書き込んだ値から閾値以上変化したときだけ書き込みます。
type ProgressReporter struct {
	writer ProgressWriter
	logger zerolog.Logger
	limit  int

	mu   sync.Mutex
	last map[string]float64
}

// NewProgressReporter は ProgressReporter を作成します。
// limit はキャッシュするジョブ数の上限で、0 以下なら既定値を使います。
func NewProgressReporter(writer ProgressWriter, limit int, logger zerolog.Logger) *ProgressReporter {
	if limit <= 0 {
		limit = defaultProgressCacheSize
	}
	return &ProgressReporter{
		writer: writer,
		logger: logger.With().Str("component", "progress").Logger(),
		limit:  limit,
		last:   make(map[string]float64),
	}
}

// ProgressThreshold は次元 n の問題で書き込みを行う最小の変化量を返します。
// 小さな問題は粗く、大きな問題は細かく報告します。
func ProgressThreshold(n int) float64 {
	switch {
	case n <= 100:
		return 10
	case n <= 500:
		return 5
	default:
		return 2
	}
}

// Update は進捗値を受け取り、必要なら永続化します。書き込んだ場合に true を返します。
// ストアの障害はログに残して握りつぶします。失敗した値はキャッシュしないので次回再試行されます。
func (r *ProgressReporter) Update(ctx context.Context, jobID string, value float64, size int) bool {
	value = clampPercent(value)
	if !r.shouldWrite(jobID, value, size) {
		return false
	}
	if err := r.writer.UpdateProgress(ctx, jobID, value); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Float64("progress", value).Msg("failed to update progress")
		return false
	}
	r.remember(jobID, value)
	r.logger.Debug().Str("job_id", jobID).Float64("progress", value).Msg("progress saved")
	return true
}

// Forget はジョブのキャッシュを破棄します。終端状態を書き込んだ後に呼びます。
func (r *ProgressReporter) Forget(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, jobID)
}

// Len はキャッシュ中のジョブ数を返します。
func (r *ProgressReporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last)
}

func (r *ProgressReporter) shouldWrite(jobID string, value float64, size int) bool {
	if value == 0 || value == 100 {
		return true
	}
	r.mu.Lock()
	last, ok := r.last[jobID]
	r.mu.Unlock()
	if ok && value < last {
		// 外部から見える進捗は終端まで減らさない
		return false
	}
	return value-last >= ProgressThreshold(size)
}

func (r *ProgressReporter) remember(jobID string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.last[jobID]; !ok && len(r.last) >= r.limit {
		for evict := range r.last {
			delete(r.last, evict)
			break
		}
	}
	r.last[jobID] = value
}
