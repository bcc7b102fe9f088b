// Package dashboard owns the canonical chart state: the symbol list,
// per-symbol Fibonacci levels and overlay configs, the live bar buffers,
// and the alert log. All mutation is serialized onto a single event-loop
// goroutine; feed callbacks, pointer commands, render ticks and user
// edits are posted as closures, so no parallel mutation of level/price
// state is possible.
package dashboard

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"fibwatch/internal/alert"
	"fibwatch/internal/feed"
	"fibwatch/internal/metrics"
	"fibwatch/internal/ringbuf"
	"fibwatch/internal/sink"
	"fibwatch/internal/store"
)

const (
	// RenderInterval is the explicit scheduler tick that re-applies
	// derived visuals (price lines) idempotently.
	RenderInterval = 250 * time.Millisecond
	// persistInterval batches dirty-state saves to the config store.
	persistInterval = 2 * time.Second
	// historyLimit is the number of bars requested per historical fetch.
	historyLimit = 500
)

// Publisher pushes envelopes to connected clients. The gateway hub
// implements it; a latest-per-channel cache replays state to newcomers.
type Publisher interface {
	Publish(channel string, data []byte)
}

// Options wires the dashboard's collaborators.
type Options struct {
	RESTBase   string
	StreamBase string
	Sink       sink.Sink        // delivery outcome of record
	Speech     *sink.SpeechSink // optional, toggled at runtime
	Store      *store.Store     // persisted configuration
	Recorder   *store.Recorder  // optional SQLite durability
	Metrics    *metrics.Metrics // optional
	ExportDir  string           // daily CSV export target, "" disables
}

// Dashboard is the engine behind every chart.
type Dashboard struct {
	opts   Options
	rest   *feed.Client
	state  store.PersistedState
	charts map[string]*chart
	alerts *alert.Log
	out    Publisher

	commands chan func()
	stop     chan struct{}
	dirty    bool

	recorderRing *ringbuf.Ring[store.RecordedBar]
	recorderStop chan struct{}
	exportCron   *cron.Cron

	ctx context.Context
}

// New creates a dashboard from the persisted state. Call SetPublisher
// before Run.
func New(opts Options, state store.PersistedState) *Dashboard {
	d := &Dashboard{
		opts:     opts,
		rest:     feed.NewClient(opts.RESTBase),
		state:    state,
		charts:   make(map[string]*chart),
		alerts:   alert.NewLog(alert.LogCap),
		commands: make(chan func(), 1024),
		stop:     make(chan struct{}),
	}
	if opts.Recorder != nil {
		d.recorderRing = ringbuf.New[store.RecordedBar](1024)
		d.recorderStop = make(chan struct{})
	}
	if opts.Speech != nil {
		opts.Speech.SetEnabled(state.SpeechEnabled)
	}
	return d
}

// SetPublisher attaches the client-facing output. Must be called before
// Run; the gateway needs the dashboard first, hence the two-step wiring.
func (d *Dashboard) SetPublisher(p Publisher) { d.out = p }

// Run starts the event loop and blocks until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) {
	d.ctx = ctx

	if d.opts.Recorder != nil {
		go d.opts.Recorder.RunBars(d.recorderRing, d.recorderStop)
	}
	if d.opts.ExportDir != "" {
		d.startExportCron()
	}

	for _, sym := range d.state.Symbols {
		d.openChart(sym)
	}
	d.publishState()
	d.publishAlerts()

	render := time.NewTicker(RenderInterval)
	defer render.Stop()
	persist := time.NewTicker(persistInterval)
	defer persist.Stop()

	for {
		select {
		case <-ctx.Done():
			close(d.stop)
			d.teardown()
			return
		case fn := <-d.commands:
			fn()
		case <-render.C:
			d.refreshAll()
		case <-persist.C:
			if d.dirty {
				d.opts.Store.Save(d.state)
				d.dirty = false
			}
		}
	}
}

// do serializes fn onto the event loop. Safe from any goroutine, before
// and after Run; commands posted after shutdown are dropped.
func (d *Dashboard) do(fn func()) {
	select {
	case d.commands <- fn:
	case <-d.stop:
	}
}

func (d *Dashboard) teardown() {
	if d.exportCron != nil {
		d.exportCron.Stop()
	}
	for _, c := range d.charts {
		d.closeFeed(c)
	}
	if d.recorderStop != nil {
		close(d.recorderStop)
	}
	if d.dirty {
		d.opts.Store.Save(d.state)
	}
	log.Println("[dashboard] stopped")
}

func (d *Dashboard) markDirty() { d.dirty = true }

// startExportCron writes the alert log to a dated CSV just before
// midnight, so each day's file holds the alerts still in the log at
// end of day.
func (d *Dashboard) startExportCron() {
	c := cron.New()
	_, err := c.AddFunc("59 23 * * *", func() {
		d.do(func() {
			day := time.Now()
			if err := alert.ExportCSV(d.opts.ExportDir, day, d.alerts.Events()); err != nil {
				log.Printf("[export] daily csv: %v", err)
			} else {
				log.Printf("[export] wrote daily alert csv for %s", day.Format("2006-01-02"))
			}
		})
	})
	if err != nil {
		log.Printf("[export] schedule: %v", err)
		return
	}
	c.Start()
	d.exportCron = c
}
