package alert

import (
	"testing"
	"time"

	"fibwatch/internal/model"
)

func alertLevel(price float64) model.FibLevel {
	p := price
	return model.FibLevel{
		ID:           "lvl",
		Ratio:        0.618,
		Price:        &p,
		Enabled:      true,
		AlertEnabled: true,
		RSIOp:        model.RSIGte,
		RSIThreshold: 0,
	}
}

func input(close, rsi float64, levels ...model.FibLevel) Input {
	return Input{Close: close, RSIValue: rsi, RSISource: RSIFromClose, Levels: levels, Now: time.Now()}
}

func TestEvaluate_EdgeTriggeredCrossing(t *testing.T) {
	e := NewEvaluator("BTCUSDT", "1m")
	l := alertLevel(109)

	// First close: no previous reference point, never fires.
	if got := e.Evaluate(input(110, 50, l)); len(got) != 0 {
		t.Fatalf("first close must not fire, got %d events", len(got))
	}
	// 110 → 108: above → below.
	if got := e.Evaluate(input(108, 50, l)); len(got) != 1 {
		t.Fatalf("expected crossing above→below, got %d events", len(got))
	}
	// 108 → 112: below → above.
	if got := e.Evaluate(input(112, 50, l)); len(got) != 1 {
		t.Fatalf("expected crossing below→above, got %d events", len(got))
	}
	// 112 → 113: same side, must not re-fire.
	if got := e.Evaluate(input(113, 50, l)); len(got) != 0 {
		t.Fatalf("same side must never re-fire, got %d events", len(got))
	}
}

func TestEvaluate_SameCrossingNeverRetriggers(t *testing.T) {
	e := NewEvaluator("BTCUSDT", "1m")
	l := alertLevel(100)
	e.Evaluate(input(101, 50, l))
	if got := e.Evaluate(input(99, 50, l)); len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	// Subsequent ticks on the same side of the level.
	for _, close := range []float64{98.5, 99.9, 98.0} {
		if got := e.Evaluate(input(close, 50, l)); len(got) != 0 {
			t.Fatalf("tick at %v re-triggered a consumed crossing", close)
		}
	}
}

func TestEvaluate_RSIGate(t *testing.T) {
	l := alertLevel(109)
	l.RSIOp = model.RSIGte
	l.RSIThreshold = 60

	e := NewEvaluator("BTCUSDT", "1m")
	e.Evaluate(input(110, 55, l))
	if got := e.Evaluate(input(108, 55, l)); len(got) != 0 {
		t.Fatalf("rsi 55 < threshold 60 must not fire with >=, got %d", len(got))
	}

	e = NewEvaluator("BTCUSDT", "1m")
	e.Evaluate(input(110, 65, l))
	if got := e.Evaluate(input(108, 65, l)); len(got) != 1 {
		t.Fatalf("rsi 65 >= threshold 60 must fire, got %d", len(got))
	}

	l.RSIOp = model.RSILte
	e = NewEvaluator("BTCUSDT", "1m")
	e.Evaluate(input(110, 55, l))
	if got := e.Evaluate(input(108, 55, l)); len(got) != 1 {
		t.Fatalf("rsi 55 <= threshold 60 must fire with <=, got %d", len(got))
	}
}

func TestEvaluate_SkipsDisabledAndUnresolved(t *testing.T) {
	e := NewEvaluator("BTCUSDT", "1m")

	off := alertLevel(109)
	off.AlertEnabled = false
	unresolved := alertLevel(109)
	unresolved.Price = nil
	disabled := alertLevel(109)
	disabled.Enabled = false

	e.Evaluate(input(110, 50, off, unresolved, disabled))
	if got := e.Evaluate(input(108, 50, off, unresolved, disabled)); len(got) != 0 {
		t.Fatalf("no eligible levels, got %d events", len(got))
	}
}

func TestEvaluate_MessageFormat(t *testing.T) {
	e := NewEvaluator("ETHUSDT", "5m")
	l := alertLevel(1234.5)
	e.Evaluate(input(1300, 62.34, l))
	got := e.Evaluate(input(1200, 62.34, l))
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	want := "ETHUSDT 5m crossed fib 0.618 @ 1234.500000 | RSI 62.3"
	if got[0].Message != want {
		t.Fatalf("message:\n got %q\nwant %q", got[0].Message, want)
	}
}

func TestEvaluate_HeikinAshiTag(t *testing.T) {
	e := NewEvaluator("ETHUSDT", "5m")
	l := alertLevel(1234.5)
	in := input(1300, 62.34, l)
	in.RSISource = RSIFromHeikinAshi
	e.Evaluate(in)
	in.Close = 1200
	got := e.Evaluate(in)
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	want := "ETHUSDT 5m crossed fib 0.618 @ 1234.500000 | RSI (HA) 62.3"
	if got[0].Message != want {
		t.Fatalf("message:\n got %q\nwant %q", got[0].Message, want)
	}
}

func TestEvaluate_ResetHistory(t *testing.T) {
	e := NewEvaluator("BTCUSDT", "1m")
	l := alertLevel(109)
	e.Evaluate(input(110, 50, l))
	e.ResetHistory()
	// After a buffer switch there is no previous reference point again.
	if got := e.Evaluate(input(108, 50, l)); len(got) != 0 {
		t.Fatalf("reset history must suppress the next evaluation, got %d", len(got))
	}
}

func TestLog_CapEvictsOldest(t *testing.T) {
	l := NewLog(200)
	for i := 0; i < 201; i++ {
		l.Append(model.AlertEvent{Price: float64(i)})
	}
	if l.Len() != 200 {
		t.Fatalf("expected 200 retained, got %d", l.Len())
	}
	events := l.Events()
	if events[0].Price != 200 {
		t.Fatalf("newest first: expected 200, got %v", events[0].Price)
	}
	if events[len(events)-1].Price != 1 {
		t.Fatalf("oldest entry 0 must be evicted, tail is %v", events[len(events)-1].Price)
	}
}

func TestLog_DeliveredFlagVisibleAfterAppend(t *testing.T) {
	l := NewLog(10)
	stored := l.Append(model.AlertEvent{Message: "m"})
	if l.Events()[0].Delivered != nil {
		t.Fatal("delivered must start unset")
	}
	ok := true
	stored.Delivered = &ok
	if got := l.Events()[0].Delivered; got == nil || !*got {
		t.Fatal("delivery outcome must be visible through the log")
	}
}
