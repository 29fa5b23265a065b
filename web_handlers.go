package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elijahnyp/stairway_controller/history"
	"github.com/elijahnyp/stairway_controller/stairway"
	. "github.com/elijahnyp/stairway_controller/util"
)

const (
	defaultLogCount  = 50
	defaultWaveCount = 20
	maxListCount     = 1000
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only feed, any origin may watch
	},
}

// WebSocketMessage is one change pushed to the browser.
type WebSocketMessage struct {
	Data interface{} `json:"data"`
	Type string      `json:"type"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
	hub  *WSHub
}

// WSHub maintains the set of active clients and broadcasts messages
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
}

func NewHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx ends, then disconnects every client.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			Logger.Info().Msg("Client connected to WebSocket")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				Logger.Info().Msg("Client disconnected from WebSocket")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastUpdate sends an update to all connected clients, dropping it when the
// hub is backed up.
func (h *WSHub) BroadcastUpdate(messageType string, data interface{}) {
	select {
	case h.broadcast <- WebSocketMessage{Type: messageType, Data: data}:
	default:
	}
}

// Observe is a stairway change subscriber.
func (h *WSHub) Observe(c stairway.Change) {
	h.BroadcastUpdate(c.Property, c.Value)
}

// readPump discards client input and unregisters the client once it goes away.
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *WSClient) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for message := range c.send {
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		Logger.Debug().Err(err).Msg("Error writing close message")
	}
}

// WebHandlers serves the read-only monitor pages for one stairway.
type WebHandlers struct {
	seq   *stairway.Sequencer
	waves *history.WaveRepository
	hub   *WSHub
}

func NewWebHandlers(seq *stairway.Sequencer, waves *history.WaveRepository, hub *WSHub) *WebHandlers {
	return &WebHandlers{seq: seq, waves: waves, hub: hub}
}

// Register mounts every route on the monitor server.
func (h *WebHandlers) Register(monitor *MonitorServer) {
	monitor.AddHandler("/", h.HomeHandler)
	monitor.AddHandler("/ws", h.ServeWebSocket)
	monitor.AddHandler("/api/status", h.APIStatus)
	monitor.AddHandler("/api/logs", h.APILogs)
	monitor.AddHandler("/api/waves", h.APIWaves)
}

// ServeWebSocket handles websocket requests from the peer
func (h *WebHandlers) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan WebSocketMessage, 256),
		hub:  h.hub,
	}
	// snapshot first, live changes after
	client.send <- WebSocketMessage{Type: "snapshot", Data: h.seq.Snapshot()}
	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		close(client.send)
	}

	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Error encoding response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func countParam(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("count must be a positive integer")
	}
	if n > maxListCount {
		n = maxListCount
	}
	return n, nil
}

// APIStatus returns the stairway snapshot as JSON
func (h *WebHandlers) APIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.seq.Snapshot())
}

// APILogs returns the newest log entries, most recent first.
func (h *WebHandlers) APILogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	count, err := countParam(r, defaultLogCount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logs := h.seq.Logs()
	if len(logs) > count {
		logs = logs[:count]
	}
	writeJSON(w, logs)
}

// APIWaves returns stored waves, most recent first.
func (h *WebHandlers) APIWaves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.waves == nil {
		http.Error(w, "Wave history disabled", http.StatusNotFound)
		return
	}
	count, err := countParam(r, defaultWaveCount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	waves, err := h.waves.RecentWaves(ctx, count)
	if err != nil {
		Logger.Error().Err(err).Msg("Error reading wave history")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, waves)
}

// HomeHandler renders the status table and recent log.
func (h *WebHandlers) HomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := h.seq.Snapshot()
	w.Header().Add("Content-Type", "text/html")
	writeString := func(s string) {
		if _, err := io.WriteString(w, s); err != nil {
			Logger.Error().Msgf("Error writing response: %v", err)
		}
	}
	writeString("<html><head><title>Stairway</title></head><body>")
	writeString(fmt.Sprintf("<h3>%s</h3>", html.EscapeString(snap.Status)))
	writeString("<table>")
	writeString(fmt.Sprintf("<tr><th>Direction</th><td>%v</td></tr>", snap.Direction))
	writeString(fmt.Sprintf("<tr><th>Busy</th><td>%v</td></tr>", snap.Busy))
	writeString(fmt.Sprintf("<tr><th>Top sensor</th><td>%v</td></tr>", snap.PirTop))
	writeString(fmt.Sprintf("<tr><th>Bottom sensor</th><td>%v</td></tr>", snap.PirBottom))
	writeString(fmt.Sprintf("<tr><th>Step / hold (ms)</th><td>%d / %d</td></tr>", snap.StepDelayMs, snap.HoldDelayMs))
	writeString("</table><table>")
	writeString("<tr><th>Stair</th><th>Slot</th><th>On</th></tr>")
	for _, light := range snap.Lights {
		writeString("<tr>")
		writeString(fmt.Sprintf("<td>%d</td>", light.ID))
		writeString(fmt.Sprintf("<td>%s</td>", html.EscapeString(light.Slot)))
		writeString(fmt.Sprintf("<td>%v</td>", light.On))
		writeString("</tr>")
	}
	writeString("</table><pre>")
	logs := h.seq.Logs()
	if len(logs) > defaultLogCount {
		logs = logs[:defaultLogCount]
	}
	for _, entry := range logs {
		writeString(html.EscapeString(entry) + "\n")
	}
	writeString("</pre></body></html>")
}
