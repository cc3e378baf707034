package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/divine-realms/internal/engine"
	"github.com/talgya/divine-realms/internal/world"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientBuffer   = 16
	maxClientBytes = 1024
)

// TickMessage is the per-tick payload pushed to websocket clients.
type TickMessage struct {
	Type        string            `json:"type"`
	Tick        uint64            `json:"tick"`
	Stats       engine.WorldStats `json:"stats"`
	Owners      map[string]string `json:"owners"`       // Territory ID → faction ID
	DivinePower map[string]int    `json:"divine_power"` // Faction ID → power
	ServerTime  int64             `json:"server_time"`
}

type client struct {
	id   uint64
	out  chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.out) })
}

// Hub fans tick summaries out to websocket clients. It is the engine's
// broadcast phase: Run encodes under the world lock and hands bytes to
// each client's buffered queue without blocking. Clients that fall behind
// are dropped.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uint64]*client
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[uint64]*client),
	}
}

// Run implements the engine phase interface.
func (h *Hub) Run(ctx context.Context, ws *world.WorldState) error {
	if h.Clients() == 0 {
		return nil
	}
	data, err := json.Marshal(buildTickMessage(ws))
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

func buildTickMessage(ws *world.WorldState) TickMessage {
	msg := TickMessage{
		Type:        "tick",
		Tick:        ws.Tick,
		Stats:       engine.CollectStats(ws),
		Owners:      make(map[string]string),
		DivinePower: make(map[string]int, len(ws.Factions)),
		ServerTime:  time.Now().UnixMilli(),
	}
	for id, t := range ws.Territories {
		if t.Owner != "" {
			msg.Owners[id] = t.Owner
		}
	}
	for id, f := range ws.Factions {
		msg.DivinePower[id] = f.DivinePower
	}
	return msg
}

// Broadcast queues data for every client. It never blocks.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.out <- data:
		default:
			delete(h.clients, id)
			c.close()
			n := h.dropped.Add(1)
			slog.Warn("websocket client too slow, dropping", "client", id, "dropped_total", n)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register() *client {
	c := &client{id: h.nextID.Add(1), out: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		c.close()
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

// ServeWS upgrades the request and streams tick messages until the client
// goes away or is dropped.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := h.register()
	defer h.unregister(c)
	slog.Debug("websocket client connected", "client", c.id, "remote", r.RemoteAddr)

	// Reader: only needed to process control frames and notice closure.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(maxClientBytes)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			return
		case data, ok := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
