package model

import (
	"encoding/json"
	"time"
)

// AlertEvent records one fired level crossing. Immutable once created;
// appended to the capped alert log regardless of delivery outcome.
type AlertEvent struct {
	TS        time.Time `json:"ts"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Ratio     float64   `json:"ratio"`
	Price     float64   `json:"price"`
	RSIValue  float64   `json:"rsiValue"`
	Delivered *bool     `json:"delivered"` // nil until delivery attempted
	Message   string    `json:"message"`
}

// JSON returns the JSON-encoded event.
func (e *AlertEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
