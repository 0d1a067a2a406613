// Package ratelimit throttles function calls per client address.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jw6ventures/lifeos/internal/http/respond"
)

// maxClients bounds the limiter table; the least recently seen client is evicted first.
const maxClients = 10000

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	limit    rate.Limit
	burst    int
	idle     time.Duration
	proxies  []*net.IPNet
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// New returns a limiter allowing limit requests per second with the given
// burst. Clients idle for longer than idle are forgotten. Forwarding headers
// are honoured only from trustedProxies; an empty list trusts every peer.
func New(limit rate.Limit, burst int, idle time.Duration, trustedProxies []string) *Limiter {
	l := &Limiter{
		clients: make(map[string]*client),
		limit:   limit,
		burst:   burst,
		idle:    idle,
		proxies: parseProxies(trustedProxies),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Allow reports whether a request from ip may proceed, and if not, how long
// the caller should wait.
func (l *Limiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxClients {
			l.evictOldest()
		}
		c = &client{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now

	res := c.bucket.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// Middleware rejects over-limit callers with a JSON 429.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(l.clientIP(r))
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				respond.Error(w, r, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) evictOldest() {
	var oldest string
	var oldestSeen time.Time
	for ip, c := range l.clients {
		if oldest == "" || c.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = ip, c.lastSeen
		}
	}
	delete(l.clients, oldest)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) clientIP(r *http.Request) string {
	peer := parseIP(r.RemoteAddr)
	if !l.trusted(peer) {
		return peer.String()
	}

	// Leftmost X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer.String()
}

func (l *Limiter) trusted(ip net.IP) bool {
	if len(l.proxies) == 0 {
		return true
	}
	if ip == nil {
		return false
	}
	for _, n := range l.proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseProxies(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				continue
			}
			if ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

func parseIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
