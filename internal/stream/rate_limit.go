package stream

import "sync"

// defaultMaxTotal caps streams across all clients.
const defaultMaxTotal = 1000

// streamLimiter counts concurrent streams per client IP and overall.
type streamLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	if maxTotal <= 0 {
		maxTotal = defaultMaxTotal
	}
	return &streamLimiter{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire registers a stream for ip unless a limit has been reached.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.perIP[ip] >= l.maxPerIP {
		return false
	}
	l.perIP[ip]++
	l.total++
	return true
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	if l.perIP[ip]--; l.perIP[ip] <= 0 {
		delete(l.perIP, ip)
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}
