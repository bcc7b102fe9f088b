// Package gateway is the WebSocket edge of the engine: it fans
// dashboard envelopes out to connected chart clients and feeds their
// pointer and configuration commands back in.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fibwatch/internal/dashboard"
	"fibwatch/internal/interact"
	"fibwatch/internal/metrics"
	"fibwatch/internal/model"
)

// Engine is the command surface the hub dispatches client messages to.
// *dashboard.Dashboard implements it.
type Engine interface {
	PointerDown(symbol string, x, y float64)
	PointerMove(symbol string, y float64)
	PointerUp(symbol string)
	Hover(symbol string, y float64)
	SetViewport(symbol string, scale interact.PriceScale, plotWidth float64)
	NotePanZoom(symbol string)

	AddSymbol(sym string)
	RemoveSymbol(sym string)
	SetTimeframe(tf string)
	UpdateLevel(symbol, id string, patch dashboard.LevelPatch)
	ResetLevel(symbol, id string)
	UpdateOverlay(symbol, name string, cfg model.OverlayConfig)
	SetHeikinAshiView(on bool)
	SetHeikinAshiRSI(on bool)
	SetSpeechEnabled(on bool)
}

// Hub manages WebSocket clients and envelope fan-out. The latest
// envelope per channel is cached so a newly connected client receives
// the full current picture before live updates.
type Hub struct {
	engine  Engine
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel, for client-side gap detection
}

// NewHub creates a hub dispatching into engine. metrics may be nil.
func NewHub(engine Engine, m *metrics.Metrics) *Hub {
	return &Hub{
		engine:  engine,
		metrics: m,
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
	}
}

// Publish caches data as the channel's latest envelope and fans it out
// to every connected client. Slow clients are dropped rather than
// allowed to stall the rest.
func (h *Hub) Publish(channel string, data []byte) {
	now := time.Now()

	h.mu.Lock()
	seq := h.latest[channel].Seq + 1
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: seq}
	envelope, err := json.Marshal(map[string]any{
		"channel": channel,
		"data":    json.RawMessage(data),
		"ts":      now.Format(time.RFC3339Nano),
		"seq":     seq,
	})
	if err != nil {
		h.mu.Unlock()
		return
	}
	var stale []*Client
	for c := range h.clients {
		select {
		case c.send <- envelope:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range stale {
		log.Println("[gateway] dropping slow ws client")
		c.conn.Close()
	}
	if h.metrics != nil && len(stale) > 0 {
		h.metrics.WSClients.Sub(float64(len(stale)))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Chart clients are served from arbitrary dev origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade: %v", err)
		return
	}
	c := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	log.Println("[gateway] ws client connected")

	go c.writePump()
	go c.readPump()
	c.sendInitialState()
}

// RemoveClient unregisters a client; idempotent.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		if h.metrics != nil {
			h.metrics.WSClients.Dec()
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
