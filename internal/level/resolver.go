// Package level resolves Fibonacci levels to concrete prices and keeps
// their stored prices hydrated against the rolling high/low window.
package level

import "fibwatch/internal/model"

// Resolver converts a level's ratio (or explicit price) into a concrete
// price and performs write-back hydration. It remembers the last derived
// value it wrote per level so a window change never clobbers a price the
// user moved by hand.
//
// Designed for single-goroutine usage; no locks needed.
type Resolver struct {
	lastDerived map[string]float64 // level id → last hydrated derived value
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{lastDerived: make(map[string]float64)}
}

// Resolve produces the concrete price for a level:
// explicit price > ratio over the window > last bar's close. The bool is
// false only when no bars and no explicit price exist yet (level is
// unresolved and renders as pending).
func (r *Resolver) Resolve(l model.FibLevel, w model.RollingWindow, lastBar *model.Bar) (float64, bool) {
	if l.Price != nil {
		return *l.Price, true
	}
	if w.Valid() && w.Range > 0 {
		return w.Low + l.Ratio*w.Range, true
	}
	if lastBar != nil {
		return lastBar.Close, true
	}
	return 0, false
}

// Hydrate writes derived prices back into levels after a window change.
// A nil Price is filled exactly once per recompute trigger. A non-nil
// Price is advanced to the new derived value only when it still equals the
// value this resolver last derived for it. A price that differs was set
// by the user and is left alone. Returns true when any level changed.
func (r *Resolver) Hydrate(levels []model.FibLevel, w model.RollingWindow, lastBar *model.Bar) bool {
	changed := false
	for i := range levels {
		l := &levels[i]
		derived, ok := r.deriveOnly(*l, w, lastBar)
		if !ok {
			continue
		}
		switch {
		case l.Price == nil:
			v := derived
			l.Price = &v
			r.lastDerived[l.ID] = derived
			changed = true
		default:
			prev, seen := r.lastDerived[l.ID]
			if seen && *l.Price == prev && derived != prev {
				v := derived
				l.Price = &v
				r.lastDerived[l.ID] = derived
				changed = true
			}
		}
	}
	return changed
}

// NoteManual records that a level's price was set by the user (drag or
// explicit edit), so subsequent hydrations leave it alone.
func (r *Resolver) NoteManual(id string) {
	delete(r.lastDerived, id)
}

// Reset clears a level's explicit price so the next hydration re-derives
// it from the ratio.
func (r *Resolver) Reset(l *model.FibLevel) {
	l.Price = nil
	delete(r.lastDerived, l.ID)
}

// deriveOnly computes the ratio-derived price, ignoring any explicit
// override. Mirrors Resolve's fallback order minus the override.
func (r *Resolver) deriveOnly(l model.FibLevel, w model.RollingWindow, lastBar *model.Bar) (float64, bool) {
	if w.Valid() && w.Range > 0 {
		return w.Low + l.Ratio*w.Range, true
	}
	if lastBar != nil {
		return lastBar.Close, true
	}
	return 0, false
}
