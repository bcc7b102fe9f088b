package indicator

// EMA computes an Exponential Moving Average over a close series.
// Seeded with the first close; k = 2/(period+1). Output is aligned with
// closes and has a value at every index.
func EMA(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}
