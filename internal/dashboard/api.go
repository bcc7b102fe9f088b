package dashboard

import (
	"strings"
	"time"

	"fibwatch/internal/interact"
	"fibwatch/internal/model"
	"fibwatch/internal/store"
)

// The methods below form the command surface of the engine. Each one is
// safe to call from any goroutine: the body is posted onto the event
// loop and runs serialized with feed callbacks and render ticks.

// PointerDown starts a level drag when (x, y) hits a line's label band.
func (d *Dashboard) PointerDown(symbol string, x, y float64) {
	d.do(func() {
		c, ok := d.charts[symbol]
		if !ok {
			return
		}
		if c.controller.PointerDown(x, y, d.state.Levels[symbol], d.resolvedMap(c)) {
			d.publishDrag(c)
		}
	})
}

// PointerMove updates an active drag. The dragged level snaps to the
// nearest ratio projection or visible bar extremum.
func (d *Dashboard) PointerMove(symbol string, y float64) {
	d.do(func() {
		c, ok := d.charts[symbol]
		if !ok {
			return
		}
		if _, dragging := c.controller.Dragging(); !dragging {
			return
		}
		cands := interact.BuildSnapCandidates(c.buffer.Bars(), c.lastWindow, ratiosOf(d.state.Levels[symbol]))
		c.controller.PointerMove(y, cands)
		d.publishSnap(c)
	})
}

// PointerUp ends an active drag, if any.
func (d *Dashboard) PointerUp(symbol string) {
	d.do(func() {
		c, ok := d.charts[symbol]
		if !ok {
			return
		}
		c.controller.PointerUp()
		d.publishDrag(c)
		d.publishSnap(c)
	})
}

// Hover resolves the tooltip under the pointer.
func (d *Dashboard) Hover(symbol string, y float64) {
	d.do(func() {
		c, ok := d.charts[symbol]
		if !ok {
			return
		}
		tip, found := c.controller.Hover(y, d.state.Levels[symbol], d.resolvedMap(c), d.overlayValues(c))
		d.publishTooltip(c, tip, found)
	})
}

// SetViewport records the client's current price scale and plot width.
func (d *Dashboard) SetViewport(symbol string, scale interact.PriceScale, plotWidth float64) {
	d.do(func() {
		if c, ok := d.charts[symbol]; ok {
			c.controller.SetViewport(scale, plotWidth)
		}
	})
}

// NotePanZoom marks a manual pan/zoom, starting the recenter cooldown.
func (d *Dashboard) NotePanZoom(symbol string) {
	d.do(func() {
		if c, ok := d.charts[symbol]; ok {
			c.controller.NotePanZoom(time.Now())
		}
	})
}

// AddSymbol opens a chart for sym with default levels and overlays.
func (d *Dashboard) AddSymbol(sym string) {
	d.do(func() {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			return
		}
		for _, s := range d.state.Symbols {
			if s == sym {
				return
			}
		}
		d.state.Symbols = append(d.state.Symbols, sym)
		if d.state.Levels == nil {
			d.state.Levels = make(map[string][]model.FibLevel)
		}
		if d.state.Overlays == nil {
			d.state.Overlays = make(map[string]model.OverlaySet)
		}
		d.state.Levels[sym] = model.DefaultLevels(sym)
		d.state.Overlays[sym] = model.DefaultOverlays()
		d.openChart(sym)
		d.markDirty()
		d.publishState()
	})
}

// RemoveSymbol closes sym's chart and drops its configuration.
func (d *Dashboard) RemoveSymbol(sym string) {
	d.do(func() {
		idx := -1
		for i, s := range d.state.Symbols {
			if s == sym {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		d.state.Symbols = append(d.state.Symbols[:idx], d.state.Symbols[idx+1:]...)
		delete(d.state.Levels, sym)
		delete(d.state.Overlays, sym)
		d.closeChart(sym)
		d.markDirty()
		d.publishState()
	})
}

// SetTimeframe switches every chart to tf: in-flight fetches and
// streams are abandoned via their generation tokens, buffers refill
// from history, and evaluators restart with no crossing reference.
func (d *Dashboard) SetTimeframe(tf string) {
	d.do(func() {
		if tf == "" || tf == d.state.Timeframe {
			return
		}
		d.state.Timeframe = tf
		d.restartFeeds()
		d.markDirty()
		d.publishState()
	})
}

// LevelPatch is a partial update to one level's configuration. Nil
// fields are left untouched.
type LevelPatch struct {
	Enabled      *bool        `json:"enabled,omitempty"`
	AlertEnabled *bool        `json:"alertEnabled,omitempty"`
	RSIThreshold *float64     `json:"rsiThreshold,omitempty"`
	RSIOp        *model.RSIOp `json:"rsiOp,omitempty"`
	Color        *string      `json:"color,omitempty"`
}

// UpdateLevel applies a patch to one level.
func (d *Dashboard) UpdateLevel(symbol, id string, patch LevelPatch) {
	d.do(func() {
		levels := d.state.Levels[symbol]
		for i := range levels {
			if levels[i].ID != id {
				continue
			}
			if patch.Enabled != nil {
				levels[i].Enabled = *patch.Enabled
			}
			if patch.AlertEnabled != nil {
				levels[i].AlertEnabled = *patch.AlertEnabled
			}
			if patch.RSIThreshold != nil {
				levels[i].RSIThreshold = *patch.RSIThreshold
			}
			if patch.RSIOp != nil {
				levels[i].RSIOp = *patch.RSIOp
			}
			if patch.Color != nil {
				levels[i].Color = *patch.Color
			}
			d.markDirty()
			if c, ok := d.charts[symbol]; ok {
				d.publishLevels(c)
			}
			return
		}
	})
}

// ResetLevel discards a level's manual price so the next hydration
// re-derives it from the rolling window.
func (d *Dashboard) ResetLevel(symbol, id string) {
	d.do(func() {
		c, ok := d.charts[symbol]
		if !ok {
			return
		}
		levels := d.state.Levels[symbol]
		for i := range levels {
			if levels[i].ID != id {
				continue
			}
			c.resolver.Reset(&levels[i])
			d.markDirty()
			d.onBufferChanged(c, false)
			d.publishLevels(c)
			return
		}
	})
}

// UpdateOverlay replaces one overlay's config for a symbol. Name is one
// of "vwap", "ema9", "ema20", "ema200".
func (d *Dashboard) UpdateOverlay(symbol, name string, cfg model.OverlayConfig) {
	d.do(func() {
		set, ok := d.state.Overlays[symbol]
		if !ok {
			return
		}
		cfg.Smooth = model.ClampSmooth(cfg.Smooth)
		switch name {
		case "vwap":
			set.VWAP = cfg
		case "ema9":
			set.EMA9 = cfg
		case "ema20":
			set.EMA20 = cfg
		case "ema200":
			set.EMA200 = cfg
		default:
			return
		}
		d.state.Overlays[symbol] = set
		d.markDirty()
		d.publishState()
	})
}

// SetHeikinAshiView toggles Heikin-Ashi candles for display.
func (d *Dashboard) SetHeikinAshiView(on bool) {
	d.do(func() {
		if d.state.HeikinAshiView == on {
			return
		}
		d.state.HeikinAshiView = on
		d.markDirty()
		d.publishState()
	})
}

// SetHeikinAshiRSI switches the alert gate's RSI source. Evaluators
// keep their crossing reference; only the gate input changes.
func (d *Dashboard) SetHeikinAshiRSI(on bool) {
	d.do(func() {
		if d.state.HeikinAshiRSI == on {
			return
		}
		d.state.HeikinAshiRSI = on
		d.markDirty()
		d.publishState()
	})
}

// SetSpeechEnabled toggles spoken alert announcements.
func (d *Dashboard) SetSpeechEnabled(on bool) {
	d.do(func() {
		d.state.SpeechEnabled = on
		if d.opts.Speech != nil {
			d.opts.Speech.SetEnabled(on)
		}
		d.markDirty()
		d.publishState()
	})
}

// Snapshot delivers a point-in-time copy of persisted state and the
// alert log to fn, serialized with the event loop.
func (d *Dashboard) Snapshot(fn func(state store.PersistedState, alerts []model.AlertEvent)) {
	d.do(func() {
		fn(d.state, d.alerts.Events())
	})
}

func ratiosOf(levels []model.FibLevel) []float64 {
	out := make([]float64, 0, len(levels))
	for i := range levels {
		out = append(out, levels[i].Ratio)
	}
	return out
}
