package interact

import (
	"strings"
	"testing"
	"time"

	"fibwatch/internal/model"
)

type fakeWriter struct {
	lastID    string
	lastPrice float64
	writes    int
}

func (f *fakeWriter) SetLevelPrice(id string, price float64) {
	f.lastID = id
	f.lastPrice = price
	f.writes++
}

type fakeRenderer struct {
	applied map[string]float64
	weights map[string]int
	removed map[string]bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{applied: map[string]float64{}, weights: map[string]int{}, removed: map[string]bool{}}
}

func (f *fakeRenderer) ApplyPriceLine(id string, price float64, color string, weight int) {
	f.applied[id] = price
	f.weights[id] = weight
}

func (f *fakeRenderer) RemovePriceLine(id string) { f.removed[id] = true }

// scale mapping prices [0,200] over 400px: price 100 → y 200.
func testScale() PriceScale { return PriceScale{Top: 200, Bottom: 0, HeightPx: 400} }

func enabledLevel(id string, ratio float64) model.FibLevel {
	return model.FibLevel{ID: id, Ratio: ratio, Enabled: true, Color: "#fff"}
}

func TestScale_RoundTrip(t *testing.T) {
	s := testScale()
	y, ok := s.ToY(150)
	if !ok || y != 100 {
		t.Fatalf("ToY(150): expected 100, got %v ok=%v", y, ok)
	}
	p, ok := s.ToPrice(100)
	if !ok || p != 150 {
		t.Fatalf("ToPrice(100): expected 150, got %v ok=%v", p, ok)
	}
}

func TestScale_NotReady(t *testing.T) {
	var s PriceScale
	if _, ok := s.ToY(1); ok {
		t.Fatal("zero scale must not map")
	}
}

func TestPointerDown_HitsNearestInBand(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	c.SetViewport(testScale(), 800)

	levels := []model.FibLevel{enabledLevel("a", 0.5), enabledLevel("b", 0.618)}
	// a at price 100 → y 200; b at price 110 → y 180.
	resolved := map[string]float64{"a": 100, "b": 110}

	if !c.PointerDown(790, 185, levels, resolved) {
		t.Fatal("expected a hit in the label band")
	}
	if id, _ := c.Dragging(); id != "b" {
		t.Fatalf("expected nearest level b, got %q", id)
	}
}

func TestPointerDown_OutsideBandIsNoHit(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	c.SetViewport(testScale(), 800)
	levels := []model.FibLevel{enabledLevel("a", 0.5)}
	if c.PointerDown(100, 200, levels, map[string]float64{"a": 100}) {
		t.Fatal("pointer left of the label band must not grab")
	}
}

func TestPointerDown_IgnoresDisabled(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	c.SetViewport(testScale(), 800)
	l := enabledLevel("a", 0.5)
	l.Enabled = false
	if c.PointerDown(790, 200, []model.FibLevel{l}, map[string]float64{"a": 100}) {
		t.Fatal("disabled level must not be grabbable")
	}
}

func TestPointerDown_ScaleNotReadyIsNoHit(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	c.SetViewport(PriceScale{}, 800)
	if c.PointerDown(790, 200, []model.FibLevel{enabledLevel("a", 0.5)}, map[string]float64{"a": 100}) {
		t.Fatal("not-ready scale must be treated as no hit")
	}
}

func TestPointerMove_SnapsToNearestCandidate(t *testing.T) {
	w := &fakeWriter{}
	c := NewController(w, newFakeRenderer())
	c.SetViewport(testScale(), 800)
	c.PointerDown(790, 200, []model.FibLevel{enabledLevel("a", 0.5)}, map[string]float64{"a": 100})

	candidates := []model.SnapCandidate{
		{Kind: model.SnapRatio, Price: 100},
		{Kind: model.SnapRatio, Price: 105},
		{Kind: model.SnapRatio, Price: 110},
	}
	// y 186 → raw price 107 → nearest candidate 105.
	c.PointerMove(186, candidates)
	if w.lastID != "a" || w.lastPrice != 105 {
		t.Fatalf("expected snap write a=105, got %s=%v", w.lastID, w.lastPrice)
	}
	if _, ok := c.SnapIndicator(); !ok {
		t.Fatal("expected a snap indicator during drag")
	}
}

func TestPointerMove_LastWriteWins(t *testing.T) {
	w := &fakeWriter{}
	c := NewController(w, newFakeRenderer())
	c.SetViewport(testScale(), 800)
	c.PointerDown(790, 200, []model.FibLevel{enabledLevel("a", 0.5)}, map[string]float64{"a": 100})

	candidates := []model.SnapCandidate{{Kind: model.SnapRatio, Price: 90}, {Kind: model.SnapRatio, Price: 120}}
	for y := 200.0; y > 150; y -= 1 {
		c.PointerMove(y, candidates)
	}
	// Final y 151 → raw 124.5 → nearest 120.
	if w.lastPrice != 120 {
		t.Fatalf("expected final position 120, got %v", w.lastPrice)
	}
	if w.writes != 50 {
		t.Fatalf("every move event must write: expected 50, got %d", w.writes)
	}
}

func TestPointerUp_ReturnsToIdle(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	c.SetViewport(testScale(), 800)
	c.PointerDown(790, 200, []model.FibLevel{enabledLevel("a", 0.5)}, map[string]float64{"a": 100})

	if !c.PanZoomSuspended() {
		t.Fatal("pan/zoom must be suspended while dragging")
	}
	c.PointerUp()
	if _, dragging := c.Dragging(); dragging {
		t.Fatal("expected idle after pointer up")
	}
	if c.PanZoomSuspended() {
		t.Fatal("pan/zoom must resume after drag end")
	}
	if _, ok := c.SnapIndicator(); ok {
		t.Fatal("snap indicator must clear on drag end")
	}
}

func TestNearestCandidate_Unconditional(t *testing.T) {
	// No tolerance threshold: even a far candidate wins if it is nearest.
	got, ok := NearestCandidate([]model.SnapCandidate{{Price: 5000}}, 1)
	if !ok || got.Price != 5000 {
		t.Fatalf("expected unconditional snap to 5000, got %v ok=%v", got.Price, ok)
	}
}

func TestBuildSnapCandidates(t *testing.T) {
	bars := []model.Bar{
		{High: 110, Low: 90},
		{High: 120, Low: 95},
	}
	w := model.NewRollingWindow(bars, model.WindowSize)
	cands := BuildSnapCandidates(bars, w, []float64{0, 1})
	if len(cands) != 2+4 {
		t.Fatalf("expected 6 candidates, got %d", len(cands))
	}
	if cands[0].Price != 90 || cands[1].Price != 120 {
		t.Fatalf("ratio projections wrong: %+v", cands[:2])
	}
}

func TestHover_GatedByTolerance(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	c.SetViewport(testScale(), 800)
	l := enabledLevel("a", 0.5)
	l.AlertEnabled = true
	l.RSIOp = model.RSIGte
	l.RSIThreshold = 60
	resolved := map[string]float64{"a": 100} // y 200

	if _, ok := c.Hover(215, []model.FibLevel{l}, resolved, nil); ok {
		t.Fatal("15px away: outside hover tolerance")
	}
	tip, ok := c.Hover(205, []model.FibLevel{l}, resolved, nil)
	if !ok || tip.Target != "a" {
		t.Fatalf("expected hover hit on a, got %+v ok=%v", tip, ok)
	}
	if want := "alert RSI >= 60.0"; !strings.Contains(tip.Text, want) {
		t.Fatalf("tooltip must show the RSI condition, got %q", tip.Text)
	}
}

func TestHover_PrefersCloserOverlay(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	c.SetViewport(testScale(), 800)
	resolved := map[string]float64{"a": 100}
	overlays := map[string]float64{"ema9": 101} // y 198, closer to pointer at 197
	tip, ok := c.Hover(197, []model.FibLevel{enabledLevel("a", 0.5)}, resolved, overlays)
	if !ok || tip.Kind != "overlay" || tip.Target != "ema9" {
		t.Fatalf("expected overlay tooltip, got %+v ok=%v", tip, ok)
	}
}

func TestRefresh_AppliesWeightAndRemovesDisabled(t *testing.T) {
	r := newFakeRenderer()
	c := NewController(&fakeWriter{}, r)

	alerting := enabledLevel("a", 0.5)
	alerting.AlertEnabled = true
	disabled := enabledLevel("b", 0.618)
	disabled.Enabled = false

	c.Refresh([]model.FibLevel{alerting, disabled}, map[string]float64{"a": 100, "b": 110})
	if r.applied["a"] != 100 || r.weights["a"] != 2 {
		t.Fatalf("alert-enabled line must render heavier: %+v %+v", r.applied, r.weights)
	}
	if !r.removed["b"] {
		t.Fatal("disabled level's line must be removed")
	}
}

func TestAutoRecenterCooldown(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	now := time.Now()
	if !c.AutoRecenterAllowed(now) {
		t.Fatal("recenter allowed before any manual input")
	}
	c.NotePanZoom(now)
	if c.AutoRecenterAllowed(now.Add(500 * time.Millisecond)) {
		t.Fatal("recenter must be suppressed inside the cooldown")
	}
	if !c.AutoRecenterAllowed(now.Add(RecenterCooldown)) {
		t.Fatal("recenter allowed once the cooldown elapses")
	}
}

func TestShouldRecenter(t *testing.T) {
	c := NewController(&fakeWriter{}, newFakeRenderer())
	now := time.Now()

	if c.ShouldRecenter(300, now) {
		t.Fatal("no recenter before the scale is known")
	}
	c.SetViewport(testScale(), 800)

	if c.ShouldRecenter(100, now) {
		t.Fatal("price inside the visible range must not recenter")
	}
	if !c.ShouldRecenter(300, now) {
		t.Fatal("price above the visible range should recenter")
	}
	if !c.ShouldRecenter(-10, now) {
		t.Fatal("price below the visible range should recenter")
	}

	c.NotePanZoom(now)
	if c.ShouldRecenter(300, now.Add(500*time.Millisecond)) {
		t.Fatal("recenter must respect the pan/zoom cooldown")
	}
	if !c.ShouldRecenter(300, now.Add(RecenterCooldown)) {
		t.Fatal("recenter resumes after the cooldown")
	}
}
