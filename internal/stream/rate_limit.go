package stream

import (
	"sync"
)

// defaultMaxTotal caps streams across all clients.
const defaultMaxTotal = 1000

// streamLimiter counts open streams per client IP and overall. SSE and
// WebSocket clients share one limiter.
type streamLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	total       int
	maxPerIP    int
	maxTotal    int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	if maxTotal <= 0 {
		maxTotal = defaultMaxTotal
	}
	return &streamLimiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
		maxTotal:    maxTotal,
	}
}

// acquire registers a stream for ip. It returns false when either limit is
// already reached.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.connections[ip] >= l.maxPerIP {
		return false
	}
	l.connections[ip]++
	l.total++
	return true
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[ip] == 0 {
		return
	}
	l.connections[ip]--
	l.total--
	if l.connections[ip] == 0 {
		delete(l.connections, ip)
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}

// active returns the number of open streams across all IPs.
func (l *streamLimiter) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
