// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBacklog = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub pushes every new log entry to connected websocket clients.
// Broadcast never blocks; a client that falls behind is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	logger  *slog.Logger
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*streamClient]struct{}),
		logger:  logger,
	}
}

// Broadcast queues e for every client. Register it with MessageLog.OnAppend.
func (h *Hub) Broadcast(e bridge.MessageEntry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("stream client too slow, dropping", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Handler returns the /api/stream handler.
// The client first receives the entries after ?after=<id>, then every new one.
func (h *Hub) Handler(runner Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var after uint32
		if v := r.URL.Query().Get("after"); v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				after = uint32(n)
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		c := &streamClient{conn: conn, send: make(chan []byte, sendBacklog)}

		// History and registration happen on the bridge loop so no entry is
		// missed or sent twice.
		err = runner.Do(r.Context(), func(st *bridge.State) {
			for _, e := range st.Log.Entries(after) {
				if data, err := json.Marshal(e); err == nil {
					c.send <- data
				}
			}
			h.add(c)
		})
		if err != nil {
			conn.Close()
			return
		}

		h.logger.Debug("stream client connected", "remote", conn.RemoteAddr().String())
		go c.writePump()
		go c.readPump(h)
	}
}

// readPump only handles control frames; anything the client sends is ignored
func (c *streamClient) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
