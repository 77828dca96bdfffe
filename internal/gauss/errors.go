package gauss

import "fmt"

// ValidationError は入力形状の検証エラーを表します。ジョブ作成前に同期的に返されます。
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// SingularError はピボットがほぼゼロで数値的に解けないことを表します。
type SingularError struct {
	Row   int
	Pivot float64
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("matrix is singular or nearly singular: pivot %.3g at row %d", e.Pivot, e.Row)
}
