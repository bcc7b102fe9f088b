package indicator

import "fibwatch/internal/model"

// VWAP computes the cumulative volume-weighted average price over bars:
// cum(typical*volume) / cum(volume), typical = (H+L+C)/3. While the
// cumulative volume is zero the bar's own typical price is emitted.
func VWAP(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	cumPV, cumVol := 0.0, 0.0
	for i, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3.0
		cumPV += typical * b.Volume
		cumVol += b.Volume
		if cumVol == 0 {
			out[i] = typical
			continue
		}
		out[i] = cumPV / cumVol
	}
	return out
}

// Closes extracts the close series from a bar slice.
func Closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
