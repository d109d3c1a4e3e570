package server

import (
	"net"
	"sync"
)

// Rejection reasons reported to the collector.
const (
	RejectMaxConnections = "max_connections"
	RejectPerIP          = "per_ip"
)

// connLimiter counts the connections being served, in total and per remote
// IP. A zero limit is unlimited. The IP is the TCP peer, not an address
// announced through the PROXY protocol.
type connLimiter struct {
	maxTotal int
	perIP    int

	mu    sync.Mutex
	total int
	byIP  map[string]int
}

func newConnLimiter(maxTotal, perIP int) *connLimiter {
	return &connLimiter{maxTotal: maxTotal, perIP: perIP, byIP: make(map[string]int)}
}

// acquire reserves a slot for addr. On success the returned release must be
// called exactly once; otherwise reason names the limit that was hit.
func (l *connLimiter) acquire(addr net.Addr) (release func(), reason string) {
	ip := remoteIP(addr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return nil, RejectMaxConnections
	}
	if l.perIP > 0 && l.byIP[ip] >= l.perIP {
		return nil, RejectPerIP
	}
	l.total++
	l.byIP[ip]++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, ""
}

func (l *connLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	if n := l.byIP[ip] - 1; n > 0 {
		l.byIP[ip] = n
	} else {
		delete(l.byIP, ip)
	}
}

func (l *connLimiter) current() (total int, ips int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total, len(l.byIP)
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
