package jobs

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/gauss-forge/internal/gauss"
)

// Coordinator はハンドラーから利用するジョブ操作です。
type Coordinator interface {
	Submit(ctx context.Context, principal string, matrix [][]float64, rhs []float64) (*Submission, error)
	Status(ctx context.Context, jobID string) (*StatusView, error)
	Result(ctx context.Context, jobID string) (*ResultView, error)
	Cancel(ctx context.Context, jobID string) (*CancelAck, error)
}

// HandlerOptions はハンドラー共通の設定です。
type HandlerOptions struct {
	// Principal は認証済みリクエストから利用者IDを取り出します。
	Principal func(c *gin.Context) string
}

type solveRequest struct {
	Matrix [][]float64 `json:"matrix"`
	RHS    []float64   `json:"rhs"`
}

// SolveHandler は POST /api/gauss/solve のハンドラーを返します。
func SolveHandler(coord Coordinator, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req solveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    gauss.CodeInvalidInput,
				"message": "matrix と rhs を JSON で送ってください。",
			})
			return
		}

		principal := ""
		if opts.Principal != nil {
			principal = opts.Principal(c)
		}

		submission, err := coord.Submit(c.Request.Context(), principal, req.Matrix, req.RHS)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, submission)
	}
}

// StatusHandler は GET /api/tasks/status/:id のハンドラーを返します。
func StatusHandler(coord Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := jobIDParam(c)
		if !ok {
			return
		}
		view, err := coord.Status(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if view == nil {
			respondNotFound(c, jobID)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// ResultHandler は GET /api/tasks/result/:id のハンドラーを返します。
func ResultHandler(coord Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := jobIDParam(c)
		if !ok {
			return
		}
		view, err := coord.Result(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if view == nil {
			respondNotFound(c, jobID)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// CancelHandler は POST /api/tasks/cancel/:id のハンドラーを返します。
func CancelHandler(coord Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := jobIDParam(c)
		if !ok {
			return
		}
		ack, err := coord.Cancel(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, ack)
	}
}

func jobIDParam(c *gin.Context) (string, bool) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    gauss.CodeInvalidInput,
			"message": "jobId を指定してください。",
		})
		return "", false
	}
	return jobID, true
}

func respondNotFound(c *gin.Context, jobID string) {
	c.JSON(http.StatusNotFound, gin.H{
		"code":    "JOB_NOT_FOUND",
		"jobId":   jobID,
		"status":  "not_found",
		"message": "指定されたジョブは存在しません。",
	})
}

func respondWithError(c *gin.Context, err error) {
	var validationErr *gauss.ValidationError
	switch {
	case errors.As(err, &validationErr):
		status := http.StatusBadRequest
		if validationErr.Code == gauss.CodeLimitExceeded {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    validationErr.Code,
			"message": validationErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
