// Package gauss はガウスの消去法による連立一次方程式の求解を提供します。
package gauss

import (
	"fmt"
	"math"
)

// エラーコード
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeLimitExceeded = "LIMIT_EXCEEDED"
)

// Validate は係数行列と右辺ベクトルの形状を検証します。
// 空行列、非正方行列、右辺の長さ不一致、maxSize を超える次元、非有限値を拒否します。
func Validate(matrix [][]float64, rhs []float64, maxSize int) error {
	n := len(matrix)
	if n == 0 {
		return newValidationError(CodeInvalidInput, "matrix must not be empty")
	}
	if maxSize > 0 && n > maxSize {
		return newValidationError(CodeLimitExceeded, fmt.Sprintf("matrix dimension %d exceeds the maximum of %dx%d", n, maxSize, maxSize))
	}
	for i, row := range matrix {
		if len(row) != n {
			return newValidationError(CodeInvalidInput, fmt.Sprintf("matrix must be square: row %d has %d columns, want %d", i, len(row), n))
		}
	}
	if len(rhs) != n {
		return newValidationError(CodeInvalidInput, fmt.Sprintf("rhs length %d does not match matrix dimension %d", len(rhs), n))
	}
	for i, row := range matrix {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return newValidationError(CodeInvalidInput, fmt.Sprintf("matrix[%d][%d] is not a finite number", i, j))
			}
		}
	}
	for i, v := range rhs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return newValidationError(CodeInvalidInput, fmt.Sprintf("rhs[%d] is not a finite number", i))
		}
	}
	return nil
}
