// Package stream pushes the CZML document to browsers as it changes.
//
// Two transports share one handler and one connection limiter:
//
//   - GET /api/v1/stream/czml serves Server-Sent Events. Each CZML packet is
//     a default "message" event, so a Cesium CzmlDataSource can consume the
//     stream directly. A "metadata" event precedes every document.
//
//     event: metadata
//     data: {"type":"metadata","version":3,"packets":42,...}
//
//     data: {"id":"document","version":"1.0",...}
//
//     data: {"id":"G01",...}
//
//   - GET /api/v1/ws/czml upgrades to a WebSocket and sends the metadata
//     message followed by the whole document as one JSON array.
//
// The full document is sent on connect (or as soon as the first one is built)
// and again after every rebuild. Keep-alives go out every KeepaliveInterval.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/httputil"
	"github.com/star/czmlgo/internal/metrics"
)

const (
	transportSSE       = "sse"
	transportWebSocket = "websocket"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // max concurrent streams per IP (default: 10)
	MaxConcurrent      int           // max concurrent streams overall (default: 1000)
	KeepaliveInterval  time.Duration // keep-alive interval (default: 30s)
	TrustProxy         bool          // take the client IP from proxy headers
}

// Handler serves document streams.
type Handler struct {
	docs    *cache.DocumentCache
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a streaming handler over docs.
func NewHandler(docs *cache.DocumentCache, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		docs:    docs,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

// Active returns the number of open streams.
func (h *Handler) Active() int {
	return h.limiter.active()
}

// admit takes a limiter slot for the request or writes a 429.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (string, bool) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if h.limiter.acquire(ip) {
		return ip, true
	}
	metrics.StreamRejected(transport)
	h.logger.Warn("stream rate limit exceeded",
		"component", "stream",
		"transport", transport,
		"remote_ip", ip,
		"current_count", h.limiter.count(ip),
	)
	w.Header().Set("Retry-After", "30")
	httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
	return "", false
}

// HandleCZML serves the SSE document stream.
// GET /api/v1/stream/czml
func (h *Handler) HandleCZML(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ip, ok := h.admit(w, r, transportSSE)
	if !ok {
		return
	}
	startTime := time.Now()
	metrics.StreamConnected(transportSSE)
	h.logger.Info("stream connected",
		"component", "stream",
		"transport", transportSSE,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	c := &sseClient{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		ip:      ip,
		logger:  h.logger,
	}

	defer func() {
		h.limiter.release(ip)
		metrics.StreamDisconnected(transportSSE)
		h.logger.Info("stream disconnected",
			"component", "stream",
			"transport", transportSSE,
			"remote_ip", ip,
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Jittered 3-7s so a restart does not bring every client back at once.
	if err := c.sendRetry(3000 + rand.Intn(4000)); err != nil {
		return
	}

	send := func(doc *cache.Document) error {
		meta, err := json.Marshal(newMetadata(doc))
		if err != nil {
			return err
		}
		if err := c.sendEvent("metadata", meta); err != nil {
			return err
		}
		frames, err := packetFrames(doc)
		if err != nil {
			return err
		}
		for _, f := range frames {
			if err := c.sendEvent("", f); err != nil {
				return err
			}
		}
		metrics.StreamSent(transportSSE, len(frames))
		return nil
	}

	h.follow(r, transportSSE, ip, send, c.sendKeepalive)
}

// follow sends the current document, then every newer one, until the
// request ends or a write fails.
func (h *Handler) follow(r *http.Request, transport, ip string, send func(*cache.Document) error, keepalive func() error) {
	ctx := r.Context()

	// Take the channel before reading the document so a publish in between
	// is not missed.
	changed := h.docs.Changed()
	var sent uint64
	if doc := h.docs.Get(); doc != nil {
		if err := send(doc); err != nil {
			h.logger.Warn("stream send error", "component", "stream", "transport", transport, "remote_ip", ip, "error", err)
			return
		}
		sent = doc.Version
	}

	ticker := time.NewTicker(h.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-changed:
			changed = h.docs.Changed()
			doc := h.docs.Get()
			if doc == nil || doc.Version == sent {
				continue
			}
			if err := send(doc); err != nil {
				h.logger.Warn("stream send error", "component", "stream", "transport", transport, "remote_ip", ip, "error", err)
				return
			}
			sent = doc.Version
			ticker.Reset(h.config.KeepaliveInterval)

		case <-ticker.C:
			if err := keepalive(); err != nil {
				h.logger.Warn("stream keepalive error", "component", "stream", "transport", transport, "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// metadataMessage precedes every document on both transports.
type metadataMessage struct {
	Type      string `json:"type"`
	Version   uint64 `json:"version"`
	BuiltAt   string `json:"built_at"`
	FetchedAt string `json:"dataset_fetched_at,omitempty"`
	Clock     string `json:"clock,omitempty"`
	Packets   int    `json:"packets"`
}

func newMetadata(doc *cache.Document) metadataMessage {
	m := metadataMessage{
		Type:    "metadata",
		Version: doc.Version,
		BuiltAt: doc.BuiltAt.UTC().Format(time.RFC3339),
		Packets: len(doc.Packets),
	}
	if !doc.FetchedAt.IsZero() {
		m.FetchedAt = doc.FetchedAt.UTC().Format(time.RFC3339)
	}
	if !doc.Clock.IsZero() {
		m.Clock = doc.Clock.String()
	}
	return m
}

// packetFrames encodes each packet of doc on its own.
func packetFrames(doc *cache.Document) ([][]byte, error) {
	frames := make([][]byte, len(doc.Packets))
	for i, p := range doc.Packets {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("packet %s: %w", p.ID, err)
		}
		frames[i] = b
	}
	return frames, nil
}
