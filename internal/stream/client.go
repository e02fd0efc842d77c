package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// writeTimeout bounds each write to a streaming client.
const writeTimeout = 30 * time.Second

// sseClient writes Server-Sent Events to one connection.
type sseClient struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// extendDeadline pushes the write deadline out before a write. Long-lived
// streams would otherwise hit the server's WriteTimeout.
func (c *sseClient) extendDeadline() {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "component", "stream", "error", err)
	}
}

// sendEvent writes one message. An empty event name sends a default
// "message" event, which is what a CZML EventSource listens to.
//
//	event: <name>\n
//	data: <payload>\n\n
func (c *sseClient) sendEvent(event string, data []byte) error {
	c.extendDeadline()

	var n int
	if event != "" {
		m, err := fmt.Fprintf(c.w, "event: %s\n", event)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		n += m
	}
	m, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	n += m

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *sseClient) sendRetry(ms int) error {
	c.extendDeadline()
	n, err := fmt.Fprintf(c.w, "retry: %d\n\n", ms)
	if err != nil {
		return fmt.Errorf("retry write: %w", err)
	}
	c.flusher.Flush()
	c.bytesSent += int64(n)
	return nil
}

// sendKeepalive writes an SSE comment line.
func (c *sseClient) sendKeepalive() error {
	c.extendDeadline()
	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	c.flusher.Flush()
	c.bytesSent += int64(n)
	return nil
}
