package gauss

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		matrix [][]float64
		rhs    []float64
		max    int
		code   string
	}{
		{name: "valid", matrix: [][]float64{{1, 2}, {3, 4}}, rhs: []float64{1, 2}, max: 10},
		{name: "empty", matrix: nil, rhs: nil, max: 10, code: CodeInvalidInput},
		{name: "not square", matrix: [][]float64{{1, 2}, {3}}, rhs: []float64{1, 2}, max: 10, code: CodeInvalidInput},
		{name: "wide rows", matrix: [][]float64{{1, 2, 3}, {4, 5, 6}}, rhs: []float64{1, 2}, max: 10, code: CodeInvalidInput},
		{name: "rhs mismatch", matrix: [][]float64{{1, 2}, {3, 4}}, rhs: []float64{1}, max: 10, code: CodeInvalidInput},
		{name: "nan", matrix: [][]float64{{1, math.NaN()}, {3, 4}}, rhs: []float64{1, 2}, max: 10, code: CodeInvalidInput},
		{name: "inf rhs", matrix: [][]float64{{1, 2}, {3, 4}}, rhs: []float64{1, math.Inf(-1)}, max: 10, code: CodeInvalidInput},
		{name: "too large", matrix: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, rhs: []float64{1, 2, 3}, max: 2, code: CodeLimitExceeded},
		{name: "no limit", matrix: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, rhs: []float64{1, 2, 3}, max: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.matrix, tt.rhs, tt.max)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "err = %v", err)
			assert.Equal(t, tt.code, verr.Code)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestValidateSingularIsNotAValidationError(t *testing.T) {
	// 特異性は形状検証では判定しない
	require.NoError(t, Validate([][]float64{{1, 2}, {2, 4}}, []float64{3, 6}, 10))
}
