// Package indicator provides technical indicator calculations over bar data.
//
// All functions are pure over their input slice; no state is kept beyond
// the caller's bar buffer, so recomputing after a buffer change is always
// safe. Positions without enough history are NaN.
package indicator

import "math"

// Last returns the most recent non-NaN value of a series.
func Last(values []float64) (float64, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) {
			return values[i], true
		}
	}
	return 0, false
}

// Smooth applies a simple moving average with the given window to a value
// series. Window 1 (or less) returns the input unchanged. The leading edge
// averages over the values available so far, so the output keeps the
// input's length and alignment. A NaN input yields a NaN output at that
// position and is excluded from neighboring windows.
func Smooth(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		return values
	}
	out := make([]float64, len(values))
	for i := range values {
		if math.IsNaN(values[i]) {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		count := 0
		for j := i; j >= 0 && j > i-window; j-- {
			if math.IsNaN(values[j]) {
				continue
			}
			sum += values[j]
			count++
		}
		out[i] = sum / float64(count)
	}
	return out
}
