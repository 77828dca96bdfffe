package gauss

import "math"

// PivotEpsilon を下回るピボットは特異とみなします。
const PivotEpsilon = 1e-10

// Phase は求解の段階を表します。
type Phase string

const (
	PhaseForward Phase = "forward"
	PhaseBack    Phase = "back"
	PhaseCommit  Phase = "commit"
)

// Step はチェックポイント時点の位置です。
// Done はその段階で処理済みの行数で、0..N の範囲を取ります。
type Step struct {
	Phase Phase
	Done  int
	N     int
}

// Checkpoint は求解ループから定期的に呼ばれます。
// エラーを返すと求解は中断され、そのエラーがそのまま Solve から返ります。
type Checkpoint func(step Step) error

// CheckpointInterval は n 行の段階で何行ごとにチェックポイントを置くかを返します。
// 1段階あたりおよそ20回に抑えます。
func CheckpointInterval(n int) int {
	if every := n / 20; every > 1 {
		return every
	}
	return 1
}

// Solve は部分ピボット選択付きガウスの消去法で A·x = b を解きます。
// 入力のスライスは変更しません。結果は丸め前の生の解です。
func Solve(matrix [][]float64, rhs []float64, checkpoint Checkpoint) ([]float64, error) {
	n := len(matrix)
	a := make([][]float64, n)
	for i, row := range matrix {
		a[i] = append([]float64(nil), row...)
	}
	b := append([]float64(nil), rhs...)

	if checkpoint == nil {
		checkpoint = func(Step) error { return nil }
	}
	every := CheckpointInterval(n)

	// 前進消去
	for i := 0; i < n; i++ {
		if i%every == 0 {
			if err := checkpoint(Step{Phase: PhaseForward, Done: i, N: n}); err != nil {
				return nil, err
			}
		}

		pivotRow := i
		maxAbs := math.Abs(a[i][i])
		for r := i + 1; r < n; r++ {
			if v := math.Abs(a[r][i]); v > maxAbs {
				maxAbs = v
				pivotRow = r
			}
		}
		if maxAbs < PivotEpsilon {
			return nil, &SingularError{Row: i, Pivot: maxAbs}
		}
		if pivotRow != i {
			a[i], a[pivotRow] = a[pivotRow], a[i]
			b[i], b[pivotRow] = b[pivotRow], b[i]
		}

		pivot := a[i]
		for r := i + 1; r < n; r++ {
			row := a[r]
			factor := row[i] / pivot[i]
			if factor == 0 {
				continue
			}
			axpy(row[i:], pivot[i:], -factor)
			b[r] -= factor * b[i]
		}
	}

	// 後退代入（x は b を上書きして求める）
	for i := n - 1; i >= 0; i-- {
		done := n - 1 - i
		if done%every == 0 {
			if err := checkpoint(Step{Phase: PhaseBack, Done: done, N: n}); err != nil {
				return nil, err
			}
		}
		b[i] = (b[i] - dot(a[i][i+1:], b[i+1:])) / a[i][i]
	}

	if err := checkpoint(Step{Phase: PhaseCommit, Done: n, N: n}); err != nil {
		return nil, err
	}
	return b, nil
}

// axpy は dst += alpha*src を計算します。
func axpy(dst, src []float64, alpha float64) {
	src = src[:len(dst)]
	for k, v := range src {
		dst[k] += alpha * v
	}
}

func dot(x, y []float64) float64 {
	y = y[:len(x)]
	var sum float64
	for k, v := range x {
		sum += v * y[k]
	}
	return sum
}
