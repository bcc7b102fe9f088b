package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"fibwatch/internal/alert"
	"fibwatch/internal/feed"
	"fibwatch/internal/indicator"
	"fibwatch/internal/interact"
	"fibwatch/internal/level"
	"fibwatch/internal/model"
	"fibwatch/internal/store"
)

// chart holds the live per-symbol machinery. gen is the generation
// token: every symbol or timeframe switch increments it, and any
// in-flight fetch or stream callback carrying a stale generation is
// discarded on arrival at the event loop.
type chart struct {
	symbol string
	gen    int

	buffer     *feed.Buffer
	stream     *feed.Stream
	feedCancel context.CancelFunc

	resolver   *level.Resolver
	controller *interact.Controller
	evaluator  *alert.Evaluator

	lastWindow model.RollingWindow
}

func (d *Dashboard) openChart(sym string) {
	if _, ok := d.charts[sym]; ok {
		return
	}
	c := &chart{
		symbol:    sym,
		buffer:    feed.NewBuffer(nil),
		resolver:  level.NewResolver(),
		evaluator: alert.NewEvaluator(sym, d.state.Timeframe),
	}
	c.controller = interact.NewController(
		&levelWriter{d: d, symbol: sym},
		&lineRenderer{d: d, symbol: sym},
	)
	d.charts[sym] = c
	d.startFeed(c)
}

func (d *Dashboard) closeChart(sym string) {
	c, ok := d.charts[sym]
	if !ok {
		return
	}
	d.closeFeed(c)
	delete(d.charts, sym)
}

// startFeed launches a historical fetch and a live stream for the
// chart's current generation. Both report back through the event loop.
func (d *Dashboard) startFeed(c *chart) {
	c.gen++
	gen := c.gen
	tf := d.state.Timeframe

	feedCtx, cancel := context.WithCancel(d.ctx)
	c.feedCancel = cancel

	go func() {
		bars, err := d.rest.FetchKlines(feedCtx, c.symbol, tf, historyLimit)
		d.do(func() {
			if c.gen != gen {
				return
			}
			if err != nil {
				// Prior data, if any, stays on screen.
				log.Printf("[feed] %s %s history fetch: %v", c.symbol, tf, err)
				if d.opts.Metrics != nil {
					d.opts.Metrics.FetchErrors.Inc()
				}
				return
			}
			c.buffer.Replace(bars)
			c.evaluator.ResetHistory()
			d.publishHistory(c)
			d.onBufferChanged(c, false)
		})
	}()

	c.stream = feed.NewStream(d.opts.StreamBase, c.symbol, tf)
	if d.opts.Metrics != nil {
		c.stream.OnReconnect = d.opts.Metrics.StreamReconnects.Inc
	}
	out := make(chan feed.Update, 256)
	go c.stream.Run(feedCtx, out)
	go func() {
		for {
			select {
			case <-feedCtx.Done():
				return
			case upd := <-out:
				d.do(func() {
					if c.gen != gen {
						return
					}
					d.onUpdate(c, upd)
				})
			}
		}
	}()
}

// closeFeed tears the chart's feed down. Bumping gen first means even
// callbacks already queued behind this one are ignored.
func (d *Dashboard) closeFeed(c *chart) {
	c.gen++
	if c.feedCancel != nil {
		c.feedCancel()
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}

// restartFeeds drops and re-establishes every chart's feed, used on
// timeframe switch.
func (d *Dashboard) restartFeeds() {
	for _, c := range d.charts {
		d.closeFeed(c)
		c.evaluator = alert.NewEvaluator(c.symbol, d.state.Timeframe)
		d.startFeed(c)
	}
}

func (d *Dashboard) onUpdate(c *chart, upd feed.Update) {
	if !c.buffer.Apply(upd.Bar) {
		return
	}
	if d.opts.Metrics != nil {
		d.opts.Metrics.BarsTotal.WithLabelValues(c.symbol).Inc()
	}
	if upd.Closed && d.recorderRing != nil {
		// non-blocking; durability is best-effort under backlog
		d.recorderRing.Push(store.RecordedBar{Timeframe: d.state.Timeframe, Bar: upd.Bar})
	}
	d.publishBar(c, upd)
	d.onBufferChanged(c, true)
}

// onBufferChanged runs the derived pipeline after any buffer mutation:
// window recompute, level hydration, alert evaluation.
func (d *Dashboard) onBufferChanged(c *chart, evaluate bool) {
	w := c.buffer.Window()
	windowMoved := w != c.lastWindow
	c.lastWindow = w

	levels := d.state.Levels[c.symbol]
	var lastBar *model.Bar
	if last, ok := c.buffer.Last(); ok {
		lastBar = &last
	}

	if windowMoved || hasUnpriced(levels) {
		if c.resolver.Hydrate(levels, w, lastBar) {
			if d.opts.Metrics != nil {
				d.opts.Metrics.Hydrations.Inc()
			}
			d.markDirty()
			d.publishLevels(c)
		}
	}

	if evaluate {
		d.evaluate(c, levels, w, lastBar)
	}

	if lastBar != nil && c.controller.ShouldRecenter(lastBar.Close, time.Now()) {
		d.publishRecenter(c, lastBar.Close)
	}
}

func hasUnpriced(levels []model.FibLevel) bool {
	for i := range levels {
		if levels[i].Price == nil {
			return true
		}
	}
	return false
}

func (d *Dashboard) evaluate(c *chart, levels []model.FibLevel, w model.RollingWindow, lastBar *model.Bar) {
	if lastBar == nil {
		return
	}
	start := time.Now()

	src := alert.RSIFromClose
	bars := c.buffer.Bars()
	if d.state.HeikinAshiRSI {
		src = alert.RSIFromHeikinAshi
		bars = indicator.HeikinAshi(bars)
	}
	rsi := lastRSI(indicator.Closes(bars))

	// Levels are evaluated against their resolved prices; the evaluator
	// only sees levels that resolve.
	eval := make([]model.FibLevel, 0, len(levels))
	for i := range levels {
		l := levels[i]
		if price, ok := c.resolver.Resolve(l, w, lastBar); ok {
			p := price
			l.Price = &p
			eval = append(eval, l)
		}
	}

	events := c.evaluator.Evaluate(alert.Input{
		Close:     lastBar.Close,
		RSIValue:  rsi,
		RSISource: src,
		Levels:    eval,
		Now:       time.Now(),
	})
	if d.opts.Metrics != nil {
		d.opts.Metrics.EvalDur.Observe(time.Since(start).Seconds())
	}
	for _, ev := range events {
		d.fireAlert(ev)
	}
}

// fireAlert records the event and hands it to the delivery sink off the
// event loop. The delivery outcome is serialized back in to update the
// stored entry.
func (d *Dashboard) fireAlert(ev model.AlertEvent) {
	log.Printf("[alert] %s", ev.Message)
	if d.opts.Metrics != nil {
		d.opts.Metrics.AlertsFired.WithLabelValues(ev.Symbol).Inc()
	}
	stored := d.alerts.Append(ev)
	d.publishAlerts()

	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, 15*time.Second)
		defer cancel()
		err := d.opts.Sink.Deliver(ctx, ev)
		d.do(func() {
			ok := err == nil
			stored.Delivered = &ok
			if err != nil {
				log.Printf("[alert] delivery failed: %v", err)
				if d.opts.Metrics != nil {
					d.opts.Metrics.DeliveryFailures.Inc()
				}
			}
			if d.opts.Recorder != nil {
				if rerr := d.opts.Recorder.RecordAlert(*stored); rerr != nil {
					log.Printf("[alert] record: %v", rerr)
				}
			}
			d.publishAlerts()
		})
	}()
}

// lastRSI returns the most recent non-NaN RSI value of the series, or
// NaN when the series is too short to seed one.
func lastRSI(closes []float64) float64 {
	series := indicator.RSI(closes, indicator.RSIPeriod)
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return math.NaN()
}

func (d *Dashboard) publishBar(c *chart, upd feed.Update) {
	if d.out == nil {
		return
	}
	b, _ := json.Marshal(struct {
		Bar    model.Bar `json:"bar"`
		Closed bool      `json:"closed"`
	}{upd.Bar, upd.Closed})
	d.out.Publish("bar:"+c.symbol, b)
}

func (d *Dashboard) publishHistory(c *chart) {
	if d.out == nil {
		return
	}
	b, _ := json.Marshal(c.buffer.Bars())
	d.out.Publish("history:"+c.symbol, b)
}

func (d *Dashboard) publishLevels(c *chart) {
	if d.out == nil {
		return
	}
	b, _ := json.Marshal(d.state.Levels[c.symbol])
	d.out.Publish("levels:"+c.symbol, b)
}

// publishRecenter tells clients to re-center the view on price. Gated
// by the controller so it never fights a drag or a recent manual pan.
func (d *Dashboard) publishRecenter(c *chart, price float64) {
	if d.out == nil {
		return
	}
	b, _ := json.Marshal(struct {
		Price float64 `json:"price"`
	}{price})
	d.out.Publish("recenter:"+c.symbol, b)
}

func (d *Dashboard) publishState() {
	if d.out == nil {
		return
	}
	b, _ := json.Marshal(d.state)
	d.out.Publish("state", b)
}

func (d *Dashboard) publishAlerts() {
	if d.out == nil {
		return
	}
	b, _ := json.Marshal(d.alerts.Events())
	d.out.Publish("alerts", b)
}
