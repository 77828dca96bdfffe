package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "gauss:job:"

	// 同一キーへの楽観ロック競合が続いた場合の再試行上限
	maxTxRetries = 16
)

// errSkipWrite は更新不要であることを updatePartial に伝えます。
var errSkipWrite = errors.New("skip write")

// JobStore はジョブレコードの永続化を担います。方針は持たず、データアクセスのみを提供します。
type JobStore interface {
	// Create は新しいレコードを保存します。同じIDが既に存在する場合はエラーです。
	Create(ctx context.Context, record *Record) error
	// Get はレコードを取得します。存在しない場合は nil, nil を返します。
	Get(ctx context.Context, jobID string) (*Record, error)
	// UpdateProgress は processing 中のジョブの進捗を更新します。
	UpdateProgress(ctx context.Context, jobID string, percent float64) error
	// UpdateStatus は processing 中のジョブを終端状態へ遷移させます。
	UpdateStatus(ctx context.Context, jobID string, update TerminalUpdate) error
	// SetCancelRequested はキャンセル要求フラグを立てます。ジョブが存在したかどうかを返します。
	SetCancelRequested(ctx context.Context, jobID string) (bool, error)
}

// RedisStore はジョブ状態を Redis に保存します。
// 複数のAPIプロセスとワーカープロセスが同じ Redis を参照することで状態を共有します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

var _ JobStore = (*RedisStore)(nil)

// NewRedisStore は RedisStore を作成します。ttl が 0 の場合レコードは失効しません。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create はジョブ情報を新規作成します。
func (s *RedisStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(record.JobID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job already exists: %s", record.JobID)
	}
	return nil
}

// Get はジョブ情報を取得します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateProgress は進捗を更新します。終端状態のジョブには何もしません。
func (s *RedisStore) UpdateProgress(ctx context.Context, jobID string, percent float64) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if record.Status != StatusProcessing {
			return errSkipWrite
		}
		record.Progress = clampPercent(percent)
		return nil
	})
}

// UpdateStatus は終端状態を書き込みます。
func (s *RedisStore) UpdateStatus(ctx context.Context, jobID string, update TerminalUpdate) error {
	if !update.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", update.Status)
	}
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if record.Status != StatusProcessing {
			return ErrJobFinished
		}
		update.apply(record)
		return nil
	})
}

// SetCancelRequested はキャンセル要求を記録します。status は変更しません。
func (s *RedisStore) SetCancelRequested(ctx context.Context, jobID string) (bool, error) {
	err := s.updatePartial(ctx, jobID, func(record *Record) error {
		if record.CancelRequested {
			return errSkipWrite
		}
		record.CancelRequested = true
		return nil
	})
	if errors.Is(err, ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// updatePartial は WATCH による楽観ロックで読み出し→変更→書き戻しを行います。
// 他プロセスの書き込みと競合した場合は読み直して再試行します。
func (s *RedisStore) updatePartial(ctx context.Context, jobID string, mutate func(*Record) error) error {
	key := jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if err := mutate(&record); err != nil {
			return err
		}
		record.UpdatedAt = s.now()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, errSkipWrite):
			return nil
		default:
			return err
		}
	}
	return fmt.Errorf("job %s: too many concurrent updates", jobID)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
