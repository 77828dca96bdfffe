package history

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Lister は利用者ごとの履歴を返します。
type Lister interface {
	ListByPrincipal(ctx context.Context, principal string) ([]CompletedTask, error)
}

// ListHandler は GET /api/tasks/me のハンドラーを返します。
func ListHandler(lister Lister, principal func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := principal(c)
		if user == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}
		tasks, err := lister.ListByPrincipal(c.Request.Context(), user)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "履歴の取得に失敗しました。",
			})
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}
