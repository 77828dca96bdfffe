package gauss

import "math"

const (
	integerSnapTol  = 1e-9
	roundMultiplier = 1e10
	// これ以上の値は丸めても変化しないのでそのまま返す
	roundLimit = 1e15
)

// RoundSolution は浮動小数点ノイズを取り除いた解を返します。
// 小数点以下10桁で丸めた後、整数から 1e-9 以内の値はその整数に揃えます。
func RoundSolution(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = roundValue(v)
	}
	return out
}

func roundValue(v float64) float64 {
	if math.Abs(v) >= roundLimit {
		return v
	}
	r := math.Round(v*roundMultiplier) / roundMultiplier
	if nearest := math.Round(r); math.Abs(r-nearest) < integerSnapTol {
		r = nearest
	}
	// -0 を 0 に揃える
	if r == 0 {
		return 0
	}
	return r
}
