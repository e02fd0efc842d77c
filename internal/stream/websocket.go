package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/metrics"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	// Viewers are served from other origins; access is controlled by the
	// auth middleware instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket serves the document over a WebSocket.
// GET /api/v1/ws/czml
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip, ok := h.admit(w, r, transportWebSocket)
	if !ok {
		return
	}
	defer h.limiter.release(ip)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed", "component", "stream", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	startTime := time.Now()
	metrics.StreamConnected(transportWebSocket)
	h.logger.Info("stream connected",
		"component", "stream",
		"transport", transportWebSocket,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	var documentsSent int
	defer func() {
		metrics.StreamDisconnected(transportWebSocket)
		h.logger.Info("stream disconnected",
			"component", "stream",
			"transport", transportWebSocket,
			"remote_ip", ip,
			"documents_sent", documentsSent,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// The read loop handles control frames and notices the peer going away.
	// Anything the client sends is ignored.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(doc *cache.Document) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(newMetadata(doc)); err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, doc.JSON); err != nil {
			return err
		}
		documentsSent++
		metrics.StreamSent(transportWebSocket, len(doc.Packets))
		return nil
	}
	ping := func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
	}

	h.follow(r.WithContext(ctx), transportWebSocket, ip, send, ping)

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
