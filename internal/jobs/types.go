package jobs

import (
	"errors"
	"fmt"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

var (
	// ErrJobNotFound は指定IDのジョブレコードが存在しないことを表します。
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished は終端状態のジョブを更新しようとしたことを表します。
	ErrJobFinished = errors.New("job already finished")
	// ErrCancelled はチェックポイントでキャンセル要求を検出したことを表します。
	ErrCancelled = errors.New("job cancelled")
	// ErrLauncherClosed は停止済みのランチャーにジョブを渡したことを表します。
	ErrLauncherClosed = errors.New("launcher closed")
)

// TimeoutError は実行時間の上限を超えたことを表します。
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("computation exceeded the time limit of %s", e.Limit)
}

// Record はジョブの現在状態を表します。
// 投入したプロセスと観測するプロセスの間で共有される唯一の情報です。
type Record struct {
	JobID           string    `json:"jobId"`
	Principal       string    `json:"principal"`
	Status          Status    `json:"status"`
	Progress        float64   `json:"progress"`
	Size            int       `json:"size"`
	Result          []float64 `json:"result,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	CancelRequested bool      `json:"cancelRequested"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TerminalUpdate は終端状態への遷移でまとめて書き込む項目です。
type TerminalUpdate struct {
	Status       Status
	Progress     float64
	Result       []float64
	ErrorMessage string
}

func completedUpdate(solution []float64) TerminalUpdate {
	return TerminalUpdate{Status: StatusCompleted, Progress: 100, Result: solution}
}

func failedUpdate(message string) TerminalUpdate {
	return TerminalUpdate{Status: StatusError, Progress: 0, ErrorMessage: message}
}

func cancelledUpdate() TerminalUpdate {
	return TerminalUpdate{Status: StatusCancelled, Progress: 0}
}

// apply は終端更新をレコードに反映します。result/error は状態に応じて片方だけ残します。
func (u TerminalUpdate) apply(record *Record) {
	record.Status = u.Status
	record.Progress = clampPercent(u.Progress)
	record.Result = nil
	record.ErrorMessage = ""
	switch u.Status {
	case StatusCompleted:
		record.Result = u.Result
	case StatusError:
		record.ErrorMessage = u.ErrorMessage
	}
}

// Task はワーカーが1ジョブを実行するために必要な入力です。
type Task struct {
	JobID     string      `json:"jobId"`
	Principal string      `json:"principal"`
	Matrix    [][]float64 `json:"matrix"`
	RHS       []float64   `json:"rhs"`
}

// Submission は Submit の応答です。
type Submission struct {
	JobID  string `json:"jobId"`
	Status Status `json:"status"`
}

// StatusView は Status の応答です。
type StatusView struct {
	JobID           string    `json:"jobId"`
	Status          Status    `json:"status"`
	Progress        float64   `json:"progress"`
	CancelRequested bool      `json:"cancelRequested"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ResultView は Result の応答です。Status によって Solution / Error のどちらかが入ります。
type ResultView struct {
	JobID    string    `json:"jobId"`
	Status   Status    `json:"status"`
	Solution []float64 `json:"solution,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// CancelAck は Cancel の応答です。
type CancelAck struct {
	JobID    string `json:"jobId"`
	Accepted bool   `json:"accepted"`
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
