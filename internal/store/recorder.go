package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fibwatch/internal/model"
	"fibwatch/internal/ringbuf"
)

const (
	recorderBatchSize  = 100
	recorderFlushDelay = 500 * time.Millisecond
)

// Recorder persists closed bars and fired alerts to SQLite, off the
// event-loop hot path. Single writer with transaction batching.
type Recorder struct {
	db *sql.DB
}

// NewRecorder opens (and migrates) the SQLite database at path with WAL
// mode enabled.
func NewRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[recorder] opened database at %s", path)
	return &Recorder{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ts        INTEGER NOT NULL,
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ratio     REAL    NOT NULL,
			price     REAL    NOT NULL,
			rsi       REAL    NOT NULL,
			delivered INTEGER,
			message   TEXT    NOT NULL
		);
	`)
	return err
}

// RecordedBar pairs a closed bar with its timeframe for persistence.
type RecordedBar struct {
	Timeframe string
	Bar       model.Bar
}

// RunBars drains closed bars from the ring and inserts them in batched
// transactions. The producer side (the event loop) pushes without ever
// blocking; this goroutine polls on the flush interval, writing a batch
// whenever recorderBatchSize bars have accumulated or the interval
// elapses with any pending. Blocks until stop closes, then performs a
// final drain.
func (r *Recorder) RunBars(ring *ringbuf.Ring[RecordedBar], stop <-chan struct{}) {
	batch := make([]RecordedBar, 0, recorderBatchSize)
	ticker := time.NewTicker(recorderFlushDelay)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.insertBars(batch); err != nil {
			log.Printf("[recorder] bar batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	drain := func() {
		for {
			rb, ok := ring.Pop()
			if !ok {
				return
			}
			batch = append(batch, rb)
			if len(batch) >= recorderBatchSize {
				flush()
			}
		}
	}

	for {
		select {
		case <-stop:
			drain()
			flush()
			if n := ring.Overflow(); n > 0 {
				log.Printf("[recorder] dropped %d bars on backlog", n)
			}
			return
		case <-ticker.C:
			drain()
			flush()
		}
	}
}

func (r *Recorder) insertBars(batch []RecordedBar) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rb := range batch {
		b := rb.Bar
		if _, err := stmt.Exec(b.Symbol, rb.Timeframe, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RecordAlert inserts one fired alert. Called when the delivery outcome
// is known; delivered may be nil when no sink was configured.
func (r *Recorder) RecordAlert(ev model.AlertEvent) error {
	var delivered any
	if ev.Delivered != nil {
		delivered = *ev.Delivered
	}
	_, err := r.db.Exec(`
		INSERT INTO alerts (ts, symbol, timeframe, ratio, price, rsi, delivered, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.TS.Unix(), ev.Symbol, ev.Timeframe, ev.Ratio, ev.Price, ev.RSIValue, delivered, ev.Message,
	)
	return err
}

// Close releases the database handle.
func (r *Recorder) Close() error { return r.db.Close() }
