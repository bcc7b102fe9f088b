package interact

// PriceScale is the chart's current vertical price→pixel mapping.
// Top/Bottom are the prices rendered at y=0 and y=HeightPx. A zero scale
// is "not ready": every mapping through it reports no hit.
type PriceScale struct {
	Top      float64 `json:"top"`
	Bottom   float64 `json:"bottom"`
	HeightPx float64 `json:"heightPx"`
}

// Ready reports whether the scale can map coordinates.
func (s PriceScale) Ready() bool {
	return s.HeightPx > 0 && s.Top != s.Bottom
}

// ToY projects a price onto a pixel y-coordinate.
func (s PriceScale) ToY(price float64) (float64, bool) {
	if !s.Ready() {
		return 0, false
	}
	return (s.Top - price) / (s.Top - s.Bottom) * s.HeightPx, true
}

// ToPrice inverts the mapping, converting a pointer y to a raw price.
func (s PriceScale) ToPrice(y float64) (float64, bool) {
	if !s.Ready() {
		return 0, false
	}
	return s.Top - y/s.HeightPx*(s.Top-s.Bottom), true
}
