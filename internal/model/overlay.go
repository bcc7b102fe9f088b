package model

// OverlayConfig controls how one indicator overlay renders.
// Smooth is an SMA window applied to the series; 1 means no smoothing.
type OverlayConfig struct {
	Show    bool    `json:"show"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"` // [0,1]
	Smooth  int     `json:"smooth"`  // one of 1,3,5,9
}

// SmoothWindows are the permitted overlay smoothing windows.
var SmoothWindows = []int{1, 3, 5, 9}

// OverlaySet holds the per-symbol overlay configs. Independent of the
// FibLevel lifecycle.
type OverlaySet struct {
	VWAP   OverlayConfig `json:"vwap"`
	EMA9   OverlayConfig `json:"ema9"`
	EMA20  OverlayConfig `json:"ema20"`
	EMA200 OverlayConfig `json:"ema200"`
}

// DefaultOverlays returns the overlay configs seeded for a new symbol.
func DefaultOverlays() OverlaySet {
	return OverlaySet{
		VWAP:   OverlayConfig{Show: true, Color: "#9c27b0", Opacity: 0.9, Smooth: 1},
		EMA9:   OverlayConfig{Show: true, Color: "#2962ff", Opacity: 0.9, Smooth: 1},
		EMA20:  OverlayConfig{Show: false, Color: "#ff9800", Opacity: 0.9, Smooth: 1},
		EMA200: OverlayConfig{Show: false, Color: "#787b86", Opacity: 0.8, Smooth: 1},
	}
}

// ClampSmooth coerces a stored smoothing value to the nearest permitted
// window, defaulting to 1 for anything unrecognized.
func ClampSmooth(n int) int {
	for _, w := range SmoothWindows {
		if n == w {
			return n
		}
	}
	return 1
}
