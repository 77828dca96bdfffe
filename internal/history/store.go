// Package history は完了したタスクの入出力を追記専用で保存します。
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	principal TEXT NOT NULL,
	input_data TEXT NOT NULL,
	result TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_history_principal ON tasks_history(principal);
`

// Input はタスクへの入力です。
type Input struct {
	Matrix [][]float64 `json:"matrix"`
	RHS    []float64   `json:"rhs"`
}

// Output はタスクの出力です。
type Output struct {
	TaskID   string    `json:"task_id"`
	Status   string    `json:"status"`
	Solution []float64 `json:"solution"`
}

// CompletedTask は完了タスクの不変なスナップショットです。
type CompletedTask struct {
	ID        int64     `json:"id"`
	Principal string    `json:"principal"`
	Input     Input     `json:"input_data"`
	Output    Output    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// Store は SQLite 上の履歴テーブルです。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore は Store を作成し、スキーマを初期化します。
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to migrate tasks_history: %w", err)
	}
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Append は完了タスクを1件追記し、採番されたIDを返します。
func (s *Store) Append(ctx context.Context, task CompletedTask) (int64, error) {
	if task.Principal == "" {
		return 0, errors.New("principal is required")
	}
	input, err := json.Marshal(task.Input)
	if err != nil {
		return 0, err
	}
	output, err := json.Marshal(task.Output)
	if err != nil {
		return 0, err
	}
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks_history(principal,input_data,result,created_at) VALUES(?,?,?,?)`,
		task.Principal, string(input), string(output), createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append task history: %w", err)
	}
	return res.LastInsertId()
}

// ListByPrincipal は指定ユーザーの履歴を新しい順に返します。
func (s *Store) ListByPrincipal(ctx context.Context, principal string) ([]CompletedTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,principal,input_data,result,created_at FROM tasks_history WHERE principal = ? ORDER BY created_at DESC, id DESC`, principal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CompletedTask{}
	for rows.Next() {
		var (
			task      CompletedTask
			input     string
			output    string
			createdAt sql.NullTime
		)
		if err := rows.Scan(&task.ID, &task.Principal, &input, &output, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(input), &task.Input); err != nil {
			return nil, fmt.Errorf("failed to decode input of task %d: %w", task.ID, err)
		}
		if err := json.Unmarshal([]byte(output), &task.Output); err != nil {
			return nil, fmt.Errorf("failed to decode result of task %d: %w", task.ID, err)
		}
		if createdAt.Valid {
			task.CreatedAt = createdAt.Time
		}
		out = append(out, task)
	}
	return out, rows.Err()
}
