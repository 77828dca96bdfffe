package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobRecordSchema = `
CREATE TABLE IF NOT EXISTS job_records (
	job_id TEXT PRIMARY KEY,
	principal TEXT NOT NULL,
	status TEXT NOT NULL,
	progress REAL NOT NULL DEFAULT 0,
	size INTEGER NOT NULL DEFAULT 0,
	result TEXT,
	error_message TEXT,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_records_status ON job_records(status);
`

// SQLiteStore はジョブ状態を SQLite に保存します。
// 同一ホスト上の複数プロセスが同じDBファイルを共有する構成向けです。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ JobStore = (*SQLiteStore)(nil)

// NewSQLiteStore は SQLiteStore を作成し、スキーマを初期化します。
// db は storage.OpenSQLite で開いた共有プールを渡します。
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.ExecContext(ctx, jobRecordSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate job_records: %w", err)
	}
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create はジョブ情報を新規作成します。
func (s *SQLiteStore) Create(ctx context.Context, record *Record) error {
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

	result, err := encodeResult(record.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_records(job_id,principal,status,progress,size,result,error_message,cancel_requested,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		record.JobID, record.Principal, string(record.Status), record.Progress, record.Size,
		result, nullString(record.ErrorMessage), record.CancelRequested, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", record.JobID, err)
	}
	return nil
}

// Get はジョブ情報を取得します。
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id,principal,status,progress,size,result,error_message,cancel_requested,created_at,updated_at FROM job_records WHERE job_id = ?`, jobID)

	var (
		record    Record
		status    string
		result    sql.NullString
		errorMsg  sql.NullString
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)
	if err := row.Scan(&record.JobID, &record.Principal, &status, &record.Progress, &record.Size,
		&result, &errorMsg, &record.CancelRequested, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	record.Status = Status(status)
	record.ErrorMessage = errorMsg.String
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &record.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of job %s: %w", jobID, err)
		}
	}
	return &record, nil
}

// UpdateProgress は進捗を更新します。終端状態のジョブには何もしません。
func (s *SQLiteStore) UpdateProgress(ctx context.Context, jobID string, percent float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_records SET progress = ?, updated_at = ? WHERE job_id = ? AND status = ?`,
		clampPercent(percent), s.now(), jobID, string(StatusProcessing))
	if err != nil {
		return err
	}
	if affected(res) > 0 {
		return nil
	}
	exists, err := s.exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrJobNotFound
	}
	return nil
}

// UpdateStatus は終端状態を1文でまとめて書き込みます。
func (s *SQLiteStore) UpdateStatus(ctx context.Context, jobID string, update TerminalUpdate) error {
	if !update.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", update.Status)
	}
	var record Record
	update.apply(&record)
	result, err := encodeResult(record.Result)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE job_records SET status = ?, progress = ?, result = ?, error_message = ?, updated_at = ? WHERE job_id = ? AND status = ?`,
		string(record.Status), record.Progress, result, nullString(record.ErrorMessage), s.now(), jobID, string(StatusProcessing))
	if err != nil {
		return err
	}
	if affected(res) > 0 {
		return nil
	}
	exists, err := s.exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrJobNotFound
	}
	return ErrJobFinished
}

// SetCancelRequested はキャンセル要求を記録します。status は変更しません。
func (s *SQLiteStore) SetCancelRequested(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_records SET cancel_requested = 1, updated_at = ? WHERE job_id = ? AND cancel_requested = 0`,
		s.now(), jobID)
	if err != nil {
		return false, err
	}
	if affected(res) > 0 {
		return true, nil
	}
	return s.exists(ctx, jobID)
}

func (s *SQLiteStore) exists(ctx context.Context, jobID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM job_records WHERE job_id = ?`, jobID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func encodeResult(result []float64) (sql.NullString, error) {
	if result == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
