package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fibwatch/internal/model"
	"fibwatch/internal/sink"
	"fibwatch/internal/store"
)

// testFeed serves an empty kline history and accepts (then parks) any
// stream connection, so charts can open without a live exchange.
type testFeed struct {
	rest *httptest.Server
	ws   *httptest.Server
}

func newTestFeed(t *testing.T) *testFeed {
	t.Helper()
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	ws := newParkedWS(t)
	t.Cleanup(rest.Close)
	return &testFeed{rest: rest, ws: ws}
}

// newParkedWS accepts any stream connection and parks it until the
// client goes away.
func newParkedWS(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ws.Close)
	return ws
}

func (f *testFeed) streamBase() string {
	return "ws" + strings.TrimPrefix(f.ws.URL, "http")
}

// recordingSink captures deliveries and returns a configured error.
type recordingSink struct {
	mu   sync.Mutex
	got  []model.AlertEvent
	fail error
}

func (s *recordingSink) Deliver(ctx context.Context, ev model.AlertEvent) error {
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
	return s.fail
}

type nullPublisher struct{}

func (nullPublisher) Publish(string, []byte) {}

func newTestDashboard(t *testing.T, snk sink.Sink) *Dashboard {
	t.Helper()
	f := newTestFeed(t)
	if snk == nil {
		snk = &recordingSink{}
	}
	st := store.New(store.NewMemoryKV())
	d := New(Options{
		RESTBase:   f.rest.URL,
		StreamBase: f.streamBase(),
		Sink:       snk,
		Store:      st,
	}, store.Defaults())
	d.SetPublisher(nullPublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	return d
}

func snapshotState(t *testing.T, d *Dashboard) store.PersistedState {
	t.Helper()
	ch := make(chan store.PersistedState, 1)
	d.Snapshot(func(s store.PersistedState, _ []model.AlertEvent) { ch <- s })
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot timed out")
		return store.PersistedState{}
	}
}

func TestAddAndRemoveSymbol(t *testing.T) {
	d := newTestDashboard(t, nil)

	d.AddSymbol("ethusdt")
	s := snapshotState(t, d)
	if !containsSymbol(s.Symbols, "ETHUSDT") {
		t.Fatalf("symbols = %v, want ETHUSDT added", s.Symbols)
	}
	if len(s.Levels["ETHUSDT"]) != len(model.DefaultRatios) {
		t.Fatalf("levels = %d, want %d defaults", len(s.Levels["ETHUSDT"]), len(model.DefaultRatios))
	}

	// adding again is a no-op
	d.AddSymbol("ETHUSDT")
	if s := snapshotState(t, d); countSymbol(s.Symbols, "ETHUSDT") != 1 {
		t.Fatalf("duplicate symbol added: %v", s.Symbols)
	}

	d.RemoveSymbol("ETHUSDT")
	s = snapshotState(t, d)
	if containsSymbol(s.Symbols, "ETHUSDT") {
		t.Fatalf("symbols = %v, want ETHUSDT removed", s.Symbols)
	}
	if _, ok := s.Levels["ETHUSDT"]; ok {
		t.Fatal("level config survived symbol removal")
	}
}

func TestSetTimeframe(t *testing.T) {
	d := newTestDashboard(t, nil)

	d.SetTimeframe("15m")
	if s := snapshotState(t, d); s.Timeframe != "15m" {
		t.Fatalf("timeframe = %q, want 15m", s.Timeframe)
	}

	// empty timeframe is rejected
	d.SetTimeframe("")
	if s := snapshotState(t, d); s.Timeframe != "15m" {
		t.Fatalf("timeframe = %q after empty set", s.Timeframe)
	}
}

// A history fetch started before a timeframe switch carries a stale
// generation and must be discarded when it finally lands, never
// overwriting the fresh buffer.
func TestStaleHistoryDiscardedAfterTimeframeSwitch(t *testing.T) {
	klines := func(close float64) string {
		return fmt.Sprintf(`[[1700000000000, "100.0", "120.0", "90.0", "%.1f", "10.0", 1700000059999, "0", 1, "0", "0", "0"]]`, close)
	}

	// The 1m history hangs until released; the 5m history is instant.
	gate := make(chan struct{})
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("interval") == "1m" {
			<-gate
			w.Write([]byte(klines(111)))
			return
		}
		w.Write([]byte(klines(555)))
	}))
	defer rest.Close()
	ws := newParkedWS(t)

	st := store.New(store.NewMemoryKV())
	d := New(Options{
		RESTBase:   rest.URL,
		StreamBase: "ws" + strings.TrimPrefix(ws.URL, "http"),
		Sink:       &recordingSink{},
		Store:      st,
	}, store.Defaults())
	d.SetPublisher(nullPublisher{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	// Park the event loop so the switch is queued ahead of the stale
	// response's callback.
	hold := make(chan struct{})
	parked := make(chan struct{})
	d.do(func() { close(parked); <-hold })
	select {
	case <-parked:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop never started")
	}

	d.SetTimeframe("5m")
	close(gate) // stale 1m response now lands behind the queued switch
	time.Sleep(100 * time.Millisecond)
	close(hold)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var last float64
		var n int
		done := make(chan struct{})
		d.do(func() {
			if c, ok := d.charts["BTCUSDT"]; ok {
				bars := c.buffer.Bars()
				n = len(bars)
				if n > 0 {
					last = bars[n-1].Close
				}
			}
			close(done)
		})
		<-done
		if n > 0 {
			if last != 555 {
				t.Fatalf("buffer close = %v, want 555 from the fresh fetch", last)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("fresh history never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUpdateLevelPatch(t *testing.T) {
	d := newTestDashboard(t, nil)
	s := snapshotState(t, d)
	sym := s.Symbols[0]
	id := s.Levels[sym][0].ID

	on := true
	thr := 65.0
	op := model.RSILte
	d.UpdateLevel(sym, id, LevelPatch{AlertEnabled: &on, RSIThreshold: &thr, RSIOp: &op})

	s = snapshotState(t, d)
	l := s.Levels[sym][0]
	if !l.AlertEnabled || l.RSIThreshold != 65.0 || l.RSIOp != model.RSILte {
		t.Fatalf("patch not applied: %+v", l)
	}
	// untouched fields keep their values
	if !l.Enabled {
		t.Fatal("patch clobbered Enabled")
	}
}

func TestAlertDeliveryOutcomeRecorded(t *testing.T) {
	cases := []struct {
		name string
		fail error
		want bool
	}{
		{"success", nil, true},
		{"failure", errors.New("relay down"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snk := &recordingSink{fail: tc.fail}
			d := newTestDashboard(t, snk)

			ev := model.AlertEvent{
				TS:      time.Now(),
				Symbol:  "BTCUSDT",
				Ratio:   0.618,
				Message: "BTCUSDT 1m crossed fib 0.618 @ 50000.000000 | RSI 61.0",
			}
			d.do(func() { d.fireAlert(ev) })

			deadline := time.Now().Add(2 * time.Second)
			for {
				var events []model.AlertEvent
				ch := make(chan struct{})
				d.Snapshot(func(_ store.PersistedState, evs []model.AlertEvent) {
					events = evs
					close(ch)
				})
				<-ch
				if len(events) == 1 && events[0].Delivered != nil {
					if *events[0].Delivered != tc.want {
						t.Fatalf("Delivered = %v, want %v", *events[0].Delivered, tc.want)
					}
					return
				}
				if time.Now().After(deadline) {
					t.Fatalf("delivery outcome never recorded: %+v", events)
				}
				time.Sleep(10 * time.Millisecond)
			}
		})
	}
}

func TestSpeechToggleReachesSink(t *testing.T) {
	d := newTestDashboard(t, nil)
	d.SetSpeechEnabled(true)
	if s := snapshotState(t, d); !s.SpeechEnabled {
		t.Fatal("speech toggle not persisted")
	}
}

func containsSymbol(symbols []string, sym string) bool {
	return countSymbol(symbols, sym) > 0
}

func countSymbol(symbols []string, sym string) int {
	n := 0
	for _, s := range symbols {
		if s == sym {
			n++
		}
	}
	return n
}
