package model

import (
	"encoding/json"
	"time"
)

// Bar represents a single OHLCV candle for a symbol + timeframe.
// Bars are ordered by TS ascending and unique per TS; prices are float64
// because upstream exchanges quote fractional crypto prices directly.
type Bar struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // bucket open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// WindowSize is the number of trailing bars the rolling high/low window
// is derived from.
const WindowSize = 120

// RollingWindow is the high/low/range over the most recent WindowSize bars.
// Recomputed whenever the bar buffer changes.
type RollingWindow struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Range float64 `json:"range"`
	Bars  int     `json:"bars"` // bars actually included
}

// Valid reports whether the window was derived from at least one bar.
func (w RollingWindow) Valid() bool { return w.Bars > 0 }

// NewRollingWindow computes the window over the last n bars of buf.
// Returns a zero window when buf is empty.
func NewRollingWindow(buf []Bar, n int) RollingWindow {
	if len(buf) == 0 {
		return RollingWindow{}
	}
	start := 0
	if len(buf) > n {
		start = len(buf) - n
	}
	w := RollingWindow{High: buf[start].High, Low: buf[start].Low}
	for _, b := range buf[start:] {
		if b.High > w.High {
			w.High = b.High
		}
		if b.Low < w.Low {
			w.Low = b.Low
		}
		w.Bars++
	}
	w.Range = w.High - w.Low
	return w
}
