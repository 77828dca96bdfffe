package gauss

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveIdentity(t *testing.T) {
	matrix := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	x, err := Solve(matrix, []float64{1, 2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, RoundSolution(x))
}

func TestSolveRequiresPivoting(t *testing.T) {
	// 先頭のピボットが 0 なので行の入れ替えが必要
	matrix := [][]float64{
		{0, 2, 1},
		{1, 1, 1},
		{2, 1, 0},
	}
	rhs := []float64{7, 6, 4}
	x, err := Solve(matrix, rhs, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, RoundSolution(x))
}

func TestSolveDoesNotModifyInput(t *testing.T) {
	matrix := [][]float64{{0, 1}, {1, 0}}
	rhs := []float64{3, 4}
	_, err := Solve(matrix, rhs, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 0}}, matrix)
	assert.Equal(t, []float64{3, 4}, rhs)
}

func TestSolveSingular(t *testing.T) {
	_, err := Solve([][]float64{{1, 2}, {2, 4}}, []float64{3, 6}, nil)
	require.Error(t, err)

	var singular *SingularError
	require.True(t, errors.As(err, &singular))
	assert.Equal(t, 1, singular.Row)
	assert.Contains(t, err.Error(), "singular")
}

func TestSolveRandomSystemResidual(t *testing.T) {
	const n = 60
	rng := rand.New(rand.NewSource(42))
	matrix := make([][]float64, n)
	want := make([]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			matrix[i][j] = rng.Float64()*2 - 1
		}
		// 対角優位にして条件数を抑える
		matrix[i][i] += n
		want[i] = float64(rng.Intn(21) - 10)
	}
	rhs := make([]float64, n)
	for i := range matrix {
		rhs[i] = dot(matrix[i], want)
	}

	x, err := Solve(matrix, rhs, nil)
	require.NoError(t, err)
	for i := range x {
		assert.InDelta(t, want[i], x[i], 1e-9, "x[%d]", i)
	}
}

func TestSolveCheckpointCadence(t *testing.T) {
	const n = 100
	matrix := make([][]float64, n)
	rhs := make([]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 2
		rhs[i] = 4
	}

	counts := map[Phase]int{}
	var last Step
	_, err := Solve(matrix, rhs, func(step Step) error {
		counts[step.Phase]++
		assert.Equal(t, n, step.N)
		assert.LessOrEqual(t, step.Done, n)
		last = step
		return nil
	})
	require.NoError(t, err)

	every := CheckpointInterval(n)
	assert.Equal(t, 5, every)
	assert.Equal(t, n/every, counts[PhaseForward])
	assert.Equal(t, n/every, counts[PhaseBack])
	assert.Equal(t, 1, counts[PhaseCommit])
	assert.Equal(t, Step{Phase: PhaseCommit, Done: n, N: n}, last)
}

func TestSolveCheckpointAborts(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	_, err := Solve([][]float64{{1, 0}, {0, 1}}, []float64{1, 1}, func(step Step) error {
		calls++
		if step.Phase == PhaseBack {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	// 前進消去2回の後、後退代入の最初のチェックポイントで止まる
	assert.Equal(t, 3, calls)
}

func TestSolveCommitCheckpointCanReject(t *testing.T) {
	stop := errors.New("stop")
	x, err := Solve([][]float64{{1}}, []float64{1}, func(step Step) error {
		if step.Phase == PhaseCommit {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Nil(t, x)
}

func TestCheckpointInterval(t *testing.T) {
	cases := map[int]int{1: 1, 19: 1, 20: 1, 40: 2, 100: 5, 2000: 100}
	for n, want := range cases {
		assert.Equal(t, want, CheckpointInterval(n), "n=%d", n)
	}
}

func TestSolveSmallValuesStayFinite(t *testing.T) {
	x, err := Solve([][]float64{{1e-8, 0}, {0, 1e-8}}, []float64{1e-8, 2e-8}, nil)
	require.NoError(t, err)
	for _, v := range x {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	assert.Equal(t, []float64{1, 2}, RoundSolution(x))
}
