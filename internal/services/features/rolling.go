package features

import "math"

// RollingMin returns out[i] = min(xs[i-w+1..i]) for i >= w-1 and +Inf before
// that. It runs in O(n) using a monotonic deque of indices.
func RollingMin(xs []float64, w int) []float64 {
	return rolling(xs, w, math.Inf(1), func(a, b float64) bool { return a <= b })
}

// RollingMax is the maximum counterpart of RollingMin; positions before the
// first full window hold -Inf.
func RollingMax(xs []float64, w int) []float64 {
	return rolling(xs, w, math.Inf(-1), func(a, b float64) bool { return a >= b })
}

// rolling keeps the deque front as the extreme of the current window. dominates
// reports whether a new value makes an older one irrelevant.
func rolling(xs []float64, w int, fill float64, dominates func(newer, older float64) bool) []float64 {
	out := make([]float64, len(xs))
	if w <= 0 {
		for i := range out {
			out[i] = fill
		}
		return out
	}
	dq := make([]int, 0, w)
	for i, x := range xs {
		for len(dq) > 0 && dominates(x, xs[dq[len(dq)-1]]) {
			dq = dq[:len(dq)-1]
		}
		dq = append(dq, i)
		if dq[0] <= i-w {
			dq = dq[1:]
		}
		if i >= w-1 {
			out[i] = xs[dq[0]]
		} else {
			out[i] = fill
		}
	}
	return out
}

// StrictLocalMinima returns indices i in [w, n-w) where xs[i] is strictly less
// than every value within w positions on either side.
func StrictLocalMinima(xs []float64, w int) []int {
	return strictExtrema(xs, w, RollingMin(xs, w), func(x, edge float64) bool { return x < edge })
}

// StrictLocalMaxima is the maximum counterpart of StrictLocalMinima.
func StrictLocalMaxima(xs []float64, w int) []int {
	return strictExtrema(xs, w, RollingMax(xs, w), func(x, edge float64) bool { return x > edge })
}

func strictExtrema(xs []float64, w int, roll []float64, beats func(x, edge float64) bool) []int {
	n := len(xs)
	if w < 1 || n < 2*w+1 {
		return nil
	}
	var out []int
	for i := w; i < n-w; i++ {
		// roll[i-1] covers xs[i-w..i-1], roll[i+w] covers xs[i+1..i+w].
		if beats(xs[i], roll[i-1]) && beats(xs[i], roll[i+w]) {
			out = append(out, i)
		}
	}
	return out
}
