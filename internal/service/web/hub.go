// Package web exposes a read-only diagnostic surface over the pool: a
// websocket stream of events.Bus events and small JSON status/stats
// endpoints. It has no write path into the pool.
package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"proxyfleet/internal/shared/events"
	"proxyfleet/internal/shared/logger"
)

// wsMessage is the envelope every event is wrapped in before being
// written to a websocket client.
type wsMessage struct {
	Type string       `json:"type"`
	Data events.Event `json:"data"`
}

// Hub subscribes once to the bus and fans each event out to every
// connected websocket client. Client registration and the broadcast
// loop are serialized through Run so the client set never needs its
// own lock beyond the one guarding concurrent writes.
type Hub struct {
	bus        *events.Bus
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
}

func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run subscribes to the bus and drives the register/unregister/broadcast
// loop until ctx-independent shutdown (the process exiting). It blocks
// and is meant to be run in its own goroutine.
func (h *Hub) Run() {
	feed := h.bus.SubscribeAll()
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("dashboard client registered")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("dashboard client unregistered")
			}
			h.mu.Unlock()
		case ev := <-feed:
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev events.Event) {
	msg, err := json.Marshal(wsMessage{Type: "pool_event", Data: ev})
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal pool event for dashboard")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("error writing to dashboard client")
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades r to a websocket connection and registers it with the
// hub. The read pump exists only to detect the peer closing the
// connection; the dashboard never reads client input.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade websocket")
		return
	}
	hub.register <- conn

	go func() {
		defer func() {
			hub.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Msg("unexpected websocket close error")
				}
				break
			}
		}
	}()
}
