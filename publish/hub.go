package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mklimuk/sen44/air"
)

const writeWait = 5 * time.Second

// Hub broadcasts every sample to the connected WebSocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mx      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mx.Lock()
	h.clients[conn] = struct{}{}
	h.mx.Unlock()
	h.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	defer func() {
		h.mx.Lock()
		delete(h.clients, conn)
		h.mx.Unlock()
		h.log.Debug("websocket client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mx.Lock()
	defer h.mx.Unlock()
	return len(h.clients)
}

func (h *Hub) PublishState(ctx context.Context, sample air.Sample) error {
	msg, err := json.Marshal(NewEvent(sample))
	if err != nil {
		return err
	}
	h.mx.Lock()
	defer h.mx.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("websocket write failed", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
	return nil
}
