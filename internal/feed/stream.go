package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fibwatch/internal/model"
)

// DefaultStreamBase is the Binance spot WebSocket endpoint.
const DefaultStreamBase = "wss://stream.binance.com:9443"

// Update is one incremental bar update from the live stream. A bar with
// the same time bucket as the buffer's last bar replaces it; a new bucket
// extends the buffer. Closed marks the bucket as final.
type Update struct {
	Bar    model.Bar
	Closed bool
}

// Stream subscribes to one symbol+interval kline stream and delivers
// updates until its context is cancelled. Reconnects with backoff on
// transport errors; the consumer tears a Stream down (and drops its
// generation) before establishing a new one on symbol/timeframe switch.
type Stream struct {
	base     string
	symbol   string
	interval string

	// OnReconnect, if set, is called once per re-dial after the first
	// successful connection. Set before Run.
	OnReconnect func()

	// stop is created before Run starts so Close can signal teardown
	// from another goroutine without touching Run's state.
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewStream creates an unstarted stream. An empty base uses
// DefaultStreamBase.
func NewStream(base, symbol, interval string) *Stream {
	if base == "" {
		base = DefaultStreamBase
	}
	return &Stream{
		base:     base,
		symbol:   symbol,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run connects and pushes updates into out until ctx is cancelled. The
// out channel is never closed by Run; the owner decides its lifetime.
func (s *Stream) Run(ctx context.Context, out chan<- Update) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer close(s.done)

	url := fmt.Sprintf("%s/ws/%s@kline_%s", s.base, strings.ToLower(s.symbol), s.interval)
	backoff := time.Second
	connected := false

	for ctx.Err() == nil {
		if connected && s.OnReconnect != nil {
			s.OnReconnect()
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Printf("[feed] dial %s: %v (retry in %v)", url, err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		connected = true
		log.Printf("[feed] stream connected: %s %s", s.symbol, s.interval)

		s.readLoop(ctx, conn, out)
		conn.Close()
	}
}

// Close tears the stream down and waits for the read loop to exit, so no
// stale update can race a successor stream. Safe to call more than once.
func (s *Stream) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Update) {
	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[feed] read %s %s: %v (reconnecting)", s.symbol, s.interval, err)
			}
			return
		}
		upd, err := parseKlineEvent(s.symbol, msg)
		if err != nil {
			log.Printf("[feed] skip malformed event: %v", err)
			continue
		}
		select {
		case out <- upd:
		case <-ctx.Done():
			return
		}
	}
}

// klineEvent mirrors the Binance kline stream payload.
type klineEvent struct {
	EventType string `json:"e"`
	Kline     struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Final    bool   `json:"x"`
	} `json:"k"`
}

func parseKlineEvent(symbol string, msg []byte) (Update, error) {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return Update{}, fmt.Errorf("kline event: %w", err)
	}
	if ev.EventType != "kline" {
		return Update{}, fmt.Errorf("unexpected event type %q", ev.EventType)
	}
	o, err1 := strconv.ParseFloat(ev.Kline.Open, 64)
	h, err2 := strconv.ParseFloat(ev.Kline.High, 64)
	l, err3 := strconv.ParseFloat(ev.Kline.Low, 64)
	c, err4 := strconv.ParseFloat(ev.Kline.Close, 64)
	v, err5 := strconv.ParseFloat(ev.Kline.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return Update{}, fmt.Errorf("kline event prices: %w", err)
		}
	}
	return Update{
		Bar: model.Bar{
			Symbol: symbol,
			TS:     time.UnixMilli(ev.Kline.OpenTime).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
		},
		Closed: ev.Kline.Final,
	}, nil
}
