// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"net/http"
	"sync"
	"time"

	"beatlight/internal/log"

	"github.com/gorilla/websocket"
)

const writeWait = time.Second

// hub pushes status snapshots to every connected websocket client.
// Writes happen under mu, so each connection has a single writer.
type hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Operators open the dashboard from phones on the venue LAN.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// serve upgrades the request and sends first a snapshot from status.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, status func() any) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WS: upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.write(conn, status())
	h.mu.Unlock()
	log.Debugf("WS: client %s connected, total %d", r.RemoteAddr, n)

	// Clients never send anything meaningful; reading only detects close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// write sends v to conn, dropping the client on failure. Caller holds mu.
func (h *hub) write(conn *websocket.Conn, v any) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		log.Debugf("WS: send failed, dropping client: %v", err)
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		log.Debugf("WS: client disconnected, total %d", len(h.clients))
	}
}

func (h *hub) broadcast(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		h.write(conn, v)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// run broadcasts status every interval until ctx is done, skipping the
// snapshot when nobody is listening.
func (h *hub) run(ctx context.Context, interval time.Duration, status func() any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.count() > 0 {
				h.broadcast(status())
			}
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
	}
	clear(h.clients)
}
