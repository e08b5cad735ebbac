package engine

import "github.com/shopspring/decimal"

// Sliding-window extrema over decimal series using a monotonic deque.
// out[k] is the extremum of vals[k : k+w], so len(out) == len(vals)-w+1.
// Daily series are small enough for a per-window rescan, but the deque
// keeps Annotate linear in the series length regardless of window width.

func slidingMax(vals []decimal.Decimal, w int) []decimal.Decimal {
	if w < 1 || w > len(vals) {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(vals)-w+1)
	deque := make([]int, 0, w) // indexes with decreasing values
	for i, v := range vals {
		for len(deque) > 0 && vals[deque[len(deque)-1]].LessThanOrEqual(v) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] <= i-w {
			deque = deque[1:]
		}
		if i >= w-1 {
			out = append(out, vals[deque[0]])
		}
	}
	return out
}

func slidingMin(vals []decimal.Decimal, w int) []decimal.Decimal {
	if w < 1 || w > len(vals) {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(vals)-w+1)
	deque := make([]int, 0, w) // indexes with increasing values
	for i, v := range vals {
		for len(deque) > 0 && vals[deque[len(deque)-1]].GreaterThanOrEqual(v) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] <= i-w {
			deque = deque[1:]
		}
		if i >= w-1 {
			out = append(out, vals[deque[0]])
		}
	}
	return out
}
