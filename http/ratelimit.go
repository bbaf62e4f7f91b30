package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL     = 10 * time.Minute
	limiterCleanupTick = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	perMinute   int
	behindProxy bool

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	stop     chan struct{}
	stopOnce sync.Once
}

// newIPRateLimiter returns a limiter allowing perMinute requests per IP. perMinute <= 0 disables limiting.
func newIPRateLimiter(perMinute int, behindProxy bool) *ipRateLimiter {
	l := &ipRateLimiter{
		perMinute:   perMinute,
		behindProxy: behindProxy,
		limiters:    make(map[string]*limiterEntry),
		stop:        make(chan struct{}),
	}
	if perMinute > 0 {
		go l.cleanup()
	}
	return l
}

func (l *ipRateLimiter) cleanup() {
	ticker := time.NewTicker(limiterCleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, e := range l.limiters {
				if now.Sub(e.lastSeen) > limiterIdleTTL {
					delete(l.limiters, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine.
func (l *ipRateLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Middleware answers 429 once a client IP runs out of tokens.
func (l *ipRateLimiter) Middleware(next http.Handler) http.Handler {
	if l.perMinute <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(l.key(r)) {
			writeJSONResponse(w, http.StatusTooManyRequests, map[string]interface{}{
				"ok":      false,
				"message": "Too many requests. Please try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// key never trusts client supplied entries: it is the peer address, or behind a
// proxy the last X-Forwarded-For hop, which the proxy appended itself.
func (l *ipRateLimiter) key(r *http.Request) string {
	if l.behindProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
	}
	return peerIP(r)
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientIP is the address recorded as consent metadata: the first
// X-Forwarded-For entry, then X-Real-IP, then the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peerIP(r)
}
