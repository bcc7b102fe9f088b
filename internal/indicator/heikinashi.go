package indicator

import "fibwatch/internal/model"

// HeikinAshi applies the Heikin-Ashi candle transform to a bar sequence:
//
//	close' = (O+H+L+C)/4
//	open'[0] = (O+C)/2, open'[i] = (open'[i-1]+close'[i-1])/2
//	high' = max(H, open', close'), low' = min(L, open', close')
//
// Symbol, timestamp and volume carry over unchanged.
func HeikinAshi(bars []model.Bar) []model.Bar {
	out := make([]model.Bar, len(bars))
	for i, b := range bars {
		haClose := (b.Open + b.High + b.Low + b.Close) / 4.0
		var haOpen float64
		if i == 0 {
			haOpen = (b.Open + b.Close) / 2.0
		} else {
			haOpen = (out[i-1].Open + out[i-1].Close) / 2.0
		}
		haHigh := b.High
		if haOpen > haHigh {
			haHigh = haOpen
		}
		if haClose > haHigh {
			haHigh = haClose
		}
		haLow := b.Low
		if haOpen < haLow {
			haLow = haOpen
		}
		if haClose < haLow {
			haLow = haClose
		}
		out[i] = model.Bar{
			Symbol: b.Symbol,
			TS:     b.TS,
			Open:   haOpen,
			High:   haHigh,
			Low:    haLow,
			Close:  haClose,
			Volume: b.Volume,
		}
	}
	return out
}
