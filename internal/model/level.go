package model

import (
	"encoding/json"
	"fmt"
)

// RSIOp is the comparison operator for a level's RSI alert gate.
type RSIOp string

const (
	RSIGte RSIOp = ">="
	RSILte RSIOp = "<="
)

// FibLevel is a horizontal price reference on a symbol's chart, derived
// from a retracement ratio or pinned to an explicit price.
//
// Price == nil means "derive from ratio and the current rolling window".
// Once hydrated by the resolver or dragged by the user, Price holds an
// absolute value and is no longer recomputed from the ratio until reset.
type FibLevel struct {
	ID           string   `json:"id"`
	Symbol       string   `json:"symbol"`
	Ratio        float64  `json:"ratio"`
	Price        *float64 `json:"price"` // nil = derive from ratio
	Enabled      bool     `json:"enabled"`
	AlertEnabled bool     `json:"alertEnabled"`
	RSIThreshold float64  `json:"rsiThreshold"`
	RSIOp        RSIOp    `json:"rsiOp"`
	Color        string   `json:"color"`
}

// LevelID builds the stable identifier for a (symbol, ratio) pair.
func LevelID(symbol string, ratio float64) string {
	return fmt.Sprintf("fib:%s:%.3f", symbol, ratio)
}

// DefaultRatios are the retracement/extension coefficients seeded for a
// freshly added symbol.
var DefaultRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// DefaultLevelColors assigns a palette color per default ratio index.
var DefaultLevelColors = []string{
	"#787b86", "#f23645", "#ff9800", "#4caf50", "#089981", "#00bcd4", "#787b86",
}

// NewFibLevel creates an unhydrated level with default alert settings.
func NewFibLevel(symbol string, ratio float64, color string) FibLevel {
	return FibLevel{
		ID:           LevelID(symbol, ratio),
		Symbol:       symbol,
		Ratio:        ratio,
		Enabled:      true,
		RSIThreshold: 50,
		RSIOp:        RSIGte,
		Color:        color,
	}
}

// DefaultLevels seeds the standard ratio set for a symbol.
func DefaultLevels(symbol string) []FibLevel {
	out := make([]FibLevel, len(DefaultRatios))
	for i, r := range DefaultRatios {
		out[i] = NewFibLevel(symbol, r, DefaultLevelColors[i%len(DefaultLevelColors)])
	}
	return out
}

// JSON returns the JSON-encoded level.
func (l *FibLevel) JSON() []byte {
	b, _ := json.Marshal(l)
	return b
}

// SnapKind classifies what a snap candidate was derived from.
type SnapKind string

const (
	SnapRatio SnapKind = "ratio"
	SnapHigh  SnapKind = "high"
	SnapLow   SnapKind = "low"
)

// SnapCandidate is a price a dragged level gravitates toward: a
// ratio-projected price or a window bar's high/low. Only used during an
// interactive drag.
type SnapCandidate struct {
	Kind  SnapKind `json:"kind"`
	Price float64  `json:"price"`
}
