package alerts

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

const writeTimeout = 5 * time.Second

// Hub fans alerts out to connected websocket clients. It implements the
// Broadcaster hook consumed by the alert service.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates an empty websocket hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("alert-hub")
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.WithField("clients", count).Debug("alert stream client connected")

	// Drain reads so pings and close frames are processed.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the alert to every connected client and returns how many
// clients received it.
func (h *Hub) Broadcast(a alert.Alert) int {
	payload := map[string]string{
		"id":         a.ID,
		"severity":   string(a.Severity),
		"title":      a.Title,
		"message":    a.Message,
		"parish":     a.Parish,
		"station_id": a.StationID,
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	sent := 0
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			h.log.WithError(err).Debug("alert stream write failed")
			h.drop(conn)
			continue
		}
		sent++
	}
	return sent
}

// ClientCount reports the number of connected stream clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
