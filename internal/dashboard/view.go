package dashboard

import (
	"encoding/json"
	"time"

	"fibwatch/internal/indicator"
	"fibwatch/internal/interact"
	"fibwatch/internal/model"
)

// resolvedMap computes the current resolved price of every level on the
// chart, keyed by level id.
func (d *Dashboard) resolvedMap(c *chart) map[string]float64 {
	levels := d.state.Levels[c.symbol]
	w := c.lastWindow
	var lastBar *model.Bar
	if last, ok := c.buffer.Last(); ok {
		lastBar = &last
	}
	out := make(map[string]float64, len(levels))
	for i := range levels {
		if price, ok := c.resolver.Resolve(levels[i], w, lastBar); ok {
			out[levels[i].ID] = price
		}
	}
	return out
}

// refreshAll re-applies every chart's price lines. Runs on the render
// tick; ApplyPriceLine is idempotent so repeated application is safe.
func (d *Dashboard) refreshAll() {
	for _, c := range d.charts {
		c.controller.Refresh(d.state.Levels[c.symbol], d.resolvedMap(c))
	}
}

// overlayValues computes the latest value of each visible overlay for
// the hover tooltip, with the configured smoothing applied.
func (d *Dashboard) overlayValues(c *chart) map[string]float64 {
	bars := c.buffer.Bars()
	if len(bars) == 0 {
		return nil
	}
	if d.state.HeikinAshiView {
		bars = indicator.HeikinAshi(bars)
	}
	closes := indicator.Closes(bars)
	set := d.state.Overlays[c.symbol]

	out := make(map[string]float64, 4)
	add := func(name string, cfg model.OverlayConfig, series []float64) {
		if !cfg.Show {
			return
		}
		if v, ok := indicator.Last(indicator.Smooth(series, model.ClampSmooth(cfg.Smooth))); ok {
			out[name] = v
		}
	}
	add("vwap", set.VWAP, indicator.VWAP(bars))
	add("ema9", set.EMA9, indicator.EMA(closes, 9))
	add("ema20", set.EMA20, indicator.EMA(closes, 20))
	add("ema200", set.EMA200, indicator.EMA(closes, 200))
	return out
}

// levelWriter lets the interaction controller write dragged prices back
// into the owning state. Every write is a manual placement: hydration
// must never clobber it afterwards.
type levelWriter struct {
	d      *Dashboard
	symbol string
}

func (lw *levelWriter) SetLevelPrice(id string, price float64) {
	d := lw.d
	levels := d.state.Levels[lw.symbol]
	c, ok := d.charts[lw.symbol]
	if !ok {
		return
	}
	for i := range levels {
		if levels[i].ID != id {
			continue
		}
		p := price
		levels[i].Price = &p
		c.resolver.NoteManual(id)
		d.markDirty()
		if d.opts.Metrics != nil {
			d.opts.Metrics.DragUpdates.Inc()
		}
		d.publishLevels(c)
		return
	}
}

// lineRenderer broadcasts price-line primitives for one symbol. Clients
// upsert by id, so re-sending an unchanged line is harmless.
type lineRenderer struct {
	d      *Dashboard
	symbol string
}

type priceLineMsg struct {
	ID     string  `json:"id"`
	Price  float64 `json:"price,omitempty"`
	Color  string  `json:"color,omitempty"`
	Weight int     `json:"weight,omitempty"`
	Remove bool    `json:"remove,omitempty"`
}

func (lr *lineRenderer) ApplyPriceLine(id string, price float64, color string, weight int) {
	lr.publish(priceLineMsg{ID: id, Price: price, Color: color, Weight: weight})
}

func (lr *lineRenderer) RemovePriceLine(id string) {
	lr.publish(priceLineMsg{ID: id, Remove: true})
}

func (lr *lineRenderer) publish(msg priceLineMsg) {
	if lr.d.out == nil {
		return
	}
	b, _ := json.Marshal(msg)
	lr.d.out.Publish("priceline:"+lr.symbol, b)
}

func (d *Dashboard) publishSnap(c *chart) {
	if d.out == nil {
		return
	}
	tip, ok := c.controller.SnapIndicator()
	b, _ := json.Marshal(struct {
		Active  bool             `json:"active"`
		Tooltip interact.Tooltip `json:"tooltip"`
	}{ok, tip})
	d.out.Publish("snap:"+c.symbol, b)
}

func (d *Dashboard) publishTooltip(c *chart, tip interact.Tooltip, ok bool) {
	if d.out == nil {
		return
	}
	b, _ := json.Marshal(struct {
		Active  bool             `json:"active"`
		Tooltip interact.Tooltip `json:"tooltip"`
	}{ok, tip})
	d.out.Publish("tooltip:"+c.symbol, b)
}

func (d *Dashboard) publishDrag(c *chart) {
	if d.out == nil {
		return
	}
	id, active := c.controller.Dragging()
	b, _ := json.Marshal(struct {
		Active bool      `json:"active"`
		ID     string    `json:"id,omitempty"`
		TS     time.Time `json:"ts"`
	}{active, id, time.Now()})
	d.out.Publish("drag:"+c.symbol, b)
}
