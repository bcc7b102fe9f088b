// Package interact implements the pointer interaction layer for one chart
// instance: hit-testing Fibonacci level labels, the drag state machine
// with ratio/extrema snapping, hover tooltips, and the render-refresh pass
// that keeps price-line primitives in sync with resolved level prices.
package interact

import (
	"fmt"
	"math"
	"time"

	"fibwatch/internal/model"
)

const (
	// LabelBandPx is the horizontal band near the right edge of the plot
	// where a level's label is grabbable.
	LabelBandPx = 60.0
	// HitTolerancePx is the vertical tolerance for grabbing a level.
	HitTolerancePx = 12.0
	// HoverTolerancePx is the tighter tolerance for hover tooltips.
	HoverTolerancePx = 10.0
	// RecenterCooldown suppresses auto-recentering after a manual
	// zoom/pan input so the view doesn't fight the user.
	RecenterCooldown = 1200 * time.Millisecond
)

// LevelWriter receives snapped price updates for the dragged level.
// The dashboard store implements this; the controller never owns levels.
type LevelWriter interface {
	SetLevelPrice(id string, price float64)
}

// LineRenderer receives idempotent price-line updates on every refresh
// tick. The gateway implements this by pushing primitives to clients.
type LineRenderer interface {
	ApplyPriceLine(id string, price float64, color string, weight int)
	RemovePriceLine(id string)
}

// Tooltip is the transient hover/drag feedback shown next to the pointer.
type Tooltip struct {
	Target string  `json:"target"` // level id or overlay name
	Kind   string  `json:"kind"`   // "level" | "overlay" | "snap"
	Price  float64 `json:"price"`
	Text   string  `json:"text"`
}

// Controller is the per-chart pointer state machine: Idle → Dragging → Idle.
// At most one drag is active per chart, so the drag handler is the only
// writer of level prices while the refresh tick merely re-reads them.
// Single-goroutine usage; all calls happen on the dashboard event loop.
type Controller struct {
	scale     PriceScale
	plotWidth float64

	dragID   string // "" when idle
	snapTip  *Tooltip
	lastPan  time.Time
	levels   LevelWriter
	renderer LineRenderer
}

// NewController wires a controller to its level store and renderer.
func NewController(levels LevelWriter, renderer LineRenderer) *Controller {
	return &Controller{levels: levels, renderer: renderer}
}

// SetViewport updates the price scale and plot width from the client.
func (c *Controller) SetViewport(scale PriceScale, plotWidth float64) {
	c.scale = scale
	c.plotWidth = plotWidth
}

// Dragging returns the id of the level being dragged, if any.
func (c *Controller) Dragging() (string, bool) {
	return c.dragID, c.dragID != ""
}

// PanZoomSuspended reports whether normal chart panning must be held off
// (true for the duration of a drag).
func (c *Controller) PanZoomSuspended() bool { return c.dragID != "" }

// SnapIndicator returns the transient drag feedback, if a drag is active.
func (c *Controller) SnapIndicator() (Tooltip, bool) {
	if c.snapTip == nil {
		return Tooltip{}, false
	}
	return *c.snapTip, true
}

// PointerDown hit-tests the pointer against enabled level labels and, on a
// hit, transitions to Dragging. A pointer qualifies when it sits in the
// right-edge label band and within HitTolerancePx of the level's projected
// y. Ties break by smallest vertical distance. No match (or scale not
// ready) leaves the controller Idle so normal pan/zoom proceeds.
func (c *Controller) PointerDown(x, y float64, levels []model.FibLevel, resolved map[string]float64) bool {
	if c.dragID != "" {
		return false
	}
	if !c.scale.Ready() || c.plotWidth <= 0 {
		return false
	}
	if x < c.plotWidth-LabelBandPx || x > c.plotWidth {
		return false
	}

	bestID := ""
	bestDist := math.Inf(1)
	for _, l := range levels {
		if !l.Enabled {
			continue
		}
		price, ok := resolved[l.ID]
		if !ok {
			continue
		}
		ly, ok := c.scale.ToY(price)
		if !ok {
			continue
		}
		d := math.Abs(y - ly)
		if d <= HitTolerancePx && d < bestDist {
			bestDist = d
			bestID = l.ID
		}
	}
	if bestID == "" {
		return false
	}
	c.dragID = bestID
	return true
}

// PointerMove converts the pointer y to a raw price, snaps it to the
// single nearest candidate (no distance threshold, always snaps), and
// writes the snapped price through to the dragged level. Runs on every
// move event with no debouncing; last write wins. A not-ready scale or
// empty candidate set silently no-ops.
func (c *Controller) PointerMove(y float64, candidates []model.SnapCandidate) {
	if c.dragID == "" {
		return
	}
	raw, ok := c.scale.ToPrice(y)
	if !ok {
		return
	}
	snap, ok := NearestCandidate(candidates, raw)
	if !ok {
		return
	}
	c.levels.SetLevelPrice(c.dragID, snap.Price)
	c.snapTip = &Tooltip{
		Target: c.dragID,
		Kind:   "snap",
		Price:  snap.Price,
		Text:   fmt.Sprintf("%s %.6f", snap.Kind, snap.Price),
	}
}

// PointerUp ends any active drag, wherever the pointer is, clearing the
// transient snap indicator and re-enabling pan/zoom.
func (c *Controller) PointerUp() {
	c.dragID = ""
	c.snapTip = nil
}

// NearestCandidate picks the candidate with the smallest absolute price
// distance from raw.
func NearestCandidate(candidates []model.SnapCandidate, raw float64) (model.SnapCandidate, bool) {
	if len(candidates) == 0 {
		return model.SnapCandidate{}, false
	}
	best := candidates[0]
	bestDist := math.Abs(raw - best.Price)
	for _, cand := range candidates[1:] {
		if d := math.Abs(raw - cand.Price); d < bestDist {
			bestDist = d
			best = cand
		}
	}
	return best, true
}

// BuildSnapCandidates assembles the drag gravity set: every configured
// ratio projected through the window plus every window bar's high and low.
func BuildSnapCandidates(bars []model.Bar, w model.RollingWindow, ratios []float64) []model.SnapCandidate {
	out := make([]model.SnapCandidate, 0, len(ratios)+2*len(bars))
	if w.Valid() && w.Range > 0 {
		for _, r := range ratios {
			out = append(out, model.SnapCandidate{Kind: model.SnapRatio, Price: w.Low + r*w.Range})
		}
	}
	start := 0
	if len(bars) > model.WindowSize {
		start = len(bars) - model.WindowSize
	}
	for _, b := range bars[start:] {
		out = append(out,
			model.SnapCandidate{Kind: model.SnapHigh, Price: b.High},
			model.SnapCandidate{Kind: model.SnapLow, Price: b.Low},
		)
	}
	return out
}

// Hover resolves the tooltip for an idle pointer: the nearest fib level or
// visible overlay value within HoverTolerancePx. Alert-enabled levels
// include their RSI condition in the text. Returns false while dragging.
func (c *Controller) Hover(y float64, levels []model.FibLevel, resolved map[string]float64, overlays map[string]float64) (Tooltip, bool) {
	if c.dragID != "" || !c.scale.Ready() {
		return Tooltip{}, false
	}

	best := Tooltip{}
	bestDist := math.Inf(1)
	consider := func(target, kind string, price float64, text string) {
		ly, ok := c.scale.ToY(price)
		if !ok {
			return
		}
		if d := math.Abs(y - ly); d <= HoverTolerancePx && d < bestDist {
			bestDist = d
			best = Tooltip{Target: target, Kind: kind, Price: price, Text: text}
		}
	}

	for _, l := range levels {
		if !l.Enabled {
			continue
		}
		price, ok := resolved[l.ID]
		if !ok {
			continue
		}
		text := fmt.Sprintf("fib %.3f @ %.6f", l.Ratio, price)
		if l.AlertEnabled {
			text += fmt.Sprintf(" · alert RSI %s %.1f", l.RSIOp, l.RSIThreshold)
		}
		consider(l.ID, "level", price, text)
	}
	for name, v := range overlays {
		consider(name, "overlay", v, fmt.Sprintf("%s %.6f", name, v))
	}

	if math.IsInf(bestDist, 1) {
		return Tooltip{}, false
	}
	return best, true
}

// Refresh re-applies each enabled level's resolved price, color and line
// weight to the chart's price-line primitives. Called on every render tick
// so lines stay in sync even when the window recomputes between explicit
// update events. Idempotent: applying the same state twice is harmless.
func (c *Controller) Refresh(levels []model.FibLevel, resolved map[string]float64) {
	for _, l := range levels {
		price, ok := resolved[l.ID]
		if !l.Enabled || !ok {
			c.renderer.RemovePriceLine(l.ID)
			continue
		}
		weight := 1
		if l.AlertEnabled {
			weight = 2 // alert-enabled levels render heavier
		}
		c.renderer.ApplyPriceLine(l.ID, price, l.Color, weight)
	}
}

// NotePanZoom records a manual zoom/pan input.
func (c *Controller) NotePanZoom(now time.Time) { c.lastPan = now }

// ShouldRecenter reports whether the view should recenter on price: the
// price has left the visible range, the scale is ready, and recentering
// is not suppressed by a drag or the pan/zoom cooldown.
func (c *Controller) ShouldRecenter(price float64, now time.Time) bool {
	if !c.scale.Ready() || !c.AutoRecenterAllowed(now) {
		return false
	}
	lo, hi := c.scale.Bottom, c.scale.Top
	if lo > hi {
		lo, hi = hi, lo
	}
	return price < lo || price > hi
}

// AutoRecenterAllowed reports whether the view may auto-recenter: false
// within RecenterCooldown of the last manual pan/zoom and during a drag.
func (c *Controller) AutoRecenterAllowed(now time.Time) bool {
	if c.dragID != "" {
		return false
	}
	return c.lastPan.IsZero() || now.Sub(c.lastPan) >= RecenterCooldown
}
