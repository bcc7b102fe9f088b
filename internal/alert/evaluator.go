// Package alert detects directional price crossings of alert-enabled
// Fibonacci levels, gates them by RSI, and maintains the capped alert log.
package alert

import (
	"fmt"
	"math"
	"time"

	"fibwatch/internal/model"
)

// RSISource selects which close series feeds the evaluator's RSI gate.
type RSISource string

const (
	RSIFromClose      RSISource = "close"
	RSIFromHeikinAshi RSISource = "heikin-ashi"
)

// Input is one evaluation trigger: a bar close or live tick for which a
// current close and an RSI value are available.
type Input struct {
	Close     float64
	RSIValue  float64
	RSISource RSISource
	Levels    []model.FibLevel
	Now       time.Time
}

// Evaluator fires at most one AlertEvent per crossing of each level.
// Crossings are strictly edge-triggered on consecutive closes: a price
// that stays on one side, or arrives with no previous reference point,
// never fires. One evaluator per symbol+timeframe chart.
//
// Designed for single-goroutine usage; no locks needed.
type Evaluator struct {
	symbol    string
	timeframe string

	prevClose float64
	hasPrev   bool
}

// NewEvaluator creates an evaluator for one chart.
func NewEvaluator(symbol, timeframe string) *Evaluator {
	return &Evaluator{symbol: symbol, timeframe: timeframe}
}

// ResetHistory forgets the previous close, e.g. after a symbol or
// timeframe switch replaces the bar buffer.
func (e *Evaluator) ResetHistory() { e.hasPrev = false }

// Evaluate runs one pass over the enabled alert levels. Returns the
// events fired by this close; Delivered is nil until a sink reports back.
func (e *Evaluator) Evaluate(in Input) []model.AlertEvent {
	defer func() {
		e.prevClose = in.Close
		e.hasPrev = true
	}()

	if !e.hasPrev || math.IsNaN(in.RSIValue) {
		return nil
	}

	var fired []model.AlertEvent
	for _, l := range in.Levels {
		if !l.Enabled || !l.AlertEnabled || l.Price == nil {
			continue
		}
		levelPrice := *l.Price
		wasBelow := e.prevClose < levelPrice
		isBelow := in.Close < levelPrice
		if wasBelow == isBelow {
			continue
		}
		if !gatePasses(l, in.RSIValue) {
			continue
		}
		fired = append(fired, model.AlertEvent{
			TS:        in.Now,
			Symbol:    e.symbol,
			Timeframe: e.timeframe,
			Ratio:     l.Ratio,
			Price:     levelPrice,
			RSIValue:  in.RSIValue,
			Message:   formatMessage(e.symbol, e.timeframe, l.Ratio, levelPrice, in.RSIValue, in.RSISource),
		})
	}
	return fired
}

func gatePasses(l model.FibLevel, rsi float64) bool {
	switch l.RSIOp {
	case model.RSILte:
		return rsi <= l.RSIThreshold
	default:
		return rsi >= l.RSIThreshold
	}
}

func formatMessage(symbol, timeframe string, ratio, price, rsi float64, src RSISource) string {
	tag := ""
	if src == RSIFromHeikinAshi {
		tag = " (HA)"
	}
	return fmt.Sprintf("%s %s crossed fib %.3f @ %.6f | RSI%s %.1f",
		symbol, timeframe, ratio, price, tag, rsi)
}
