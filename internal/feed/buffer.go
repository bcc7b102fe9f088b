package feed

import "fibwatch/internal/model"

// MaxBufferBars caps the in-memory bar buffer per chart.
const MaxBufferBars = 1000

// Buffer holds the ordered bar series for one chart. Updates either
// replace the in-progress last bar (same time bucket) or extend the
// buffer (new bucket). Out-of-order buckets older than the last bar are
// dropped.
//
// Designed for single-goroutine usage; no locks needed.
type Buffer struct {
	bars []model.Bar
}

// NewBuffer seeds a buffer from a historical fetch.
func NewBuffer(history []model.Bar) *Buffer {
	b := &Buffer{}
	b.Replace(history)
	return b
}

// Replace swaps the whole series, e.g. after a symbol/timeframe switch.
func (b *Buffer) Replace(bars []model.Bar) {
	b.bars = append(b.bars[:0], bars...)
	b.trim()
}

// Apply merges one live update. Returns true when the buffer changed.
func (b *Buffer) Apply(bar model.Bar) bool {
	n := len(b.bars)
	if n == 0 {
		b.bars = append(b.bars, bar)
		return true
	}
	last := b.bars[n-1]
	switch {
	case bar.TS.Equal(last.TS):
		b.bars[n-1] = bar // same-bucket update
		return true
	case bar.TS.After(last.TS):
		b.bars = append(b.bars, bar)
		b.trim()
		return true
	default:
		return false // stale bucket
	}
}

// Bars returns the underlying series. Callers on the event loop may read
// it directly; it must not be retained across loop iterations.
func (b *Buffer) Bars() []model.Bar { return b.bars }

// Last returns the most recent bar.
func (b *Buffer) Last() (model.Bar, bool) {
	if len(b.bars) == 0 {
		return model.Bar{}, false
	}
	return b.bars[len(b.bars)-1], true
}

// Window recomputes the rolling high/low window over the buffer.
func (b *Buffer) Window() model.RollingWindow {
	return model.NewRollingWindow(b.bars, model.WindowSize)
}

func (b *Buffer) trim() {
	if len(b.bars) > MaxBufferBars {
		b.bars = b.bars[len(b.bars)-MaxBufferBars:]
	}
}
