package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"fibwatch/internal/dashboard"
	"fibwatch/internal/interact"
	"fibwatch/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// sendInitialState replays the latest envelope of every channel so the
// client starts from the current picture.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		envelope, _ := json.Marshal(map[string]any{
			"channel": channel,
			"data":    entry.Data,
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"seq":     entry.Seq,
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: batch queued envelopes into one frame
			// with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// command is the union of all client→engine messages; Type selects
// which fields are meaningful.
type command struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`

	X float64 `json:"x"`
	Y float64 `json:"y"`

	// viewport
	Top       float64 `json:"top"`
	Bottom    float64 `json:"bottom"`
	HeightPx  float64 `json:"heightPx"`
	PlotWidth float64 `json:"plotWidth"`

	Timeframe string `json:"timeframe"`

	// level_update / level_reset
	ID    string                `json:"id"`
	Patch *dashboard.LevelPatch `json:"patch"`

	// overlay_update
	Name    string               `json:"name"`
	Overlay *model.OverlayConfig `json:"overlay"`

	On bool `json:"on"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if json.Unmarshal(msg, &cmd) != nil {
			continue
		}
		c.dispatch(cmd)
	}
}

func (c *Client) dispatch(cmd command) {
	e := c.hub.engine
	switch cmd.Type {
	case "pointer_down":
		e.PointerDown(cmd.Symbol, cmd.X, cmd.Y)
	case "pointer_move":
		e.PointerMove(cmd.Symbol, cmd.Y)
	case "pointer_up":
		e.PointerUp(cmd.Symbol)
	case "hover":
		e.Hover(cmd.Symbol, cmd.Y)
	case "viewport":
		e.SetViewport(cmd.Symbol, interact.PriceScale{
			Top:      cmd.Top,
			Bottom:   cmd.Bottom,
			HeightPx: cmd.HeightPx,
		}, cmd.PlotWidth)
	case "pan_zoom":
		e.NotePanZoom(cmd.Symbol)
	case "add_symbol":
		e.AddSymbol(cmd.Symbol)
	case "remove_symbol":
		e.RemoveSymbol(cmd.Symbol)
	case "set_timeframe":
		e.SetTimeframe(cmd.Timeframe)
	case "level_update":
		if cmd.Patch != nil {
			e.UpdateLevel(cmd.Symbol, cmd.ID, *cmd.Patch)
		}
	case "level_reset":
		e.ResetLevel(cmd.Symbol, cmd.ID)
	case "overlay_update":
		if cmd.Overlay != nil {
			e.UpdateOverlay(cmd.Symbol, cmd.Name, *cmd.Overlay)
		}
	case "heikin_ashi_view":
		e.SetHeikinAshiView(cmd.On)
	case "heikin_ashi_rsi":
		e.SetHeikinAshiRSI(cmd.On)
	case "speech":
		e.SetSpeechEnabled(cmd.On)
	}
}
