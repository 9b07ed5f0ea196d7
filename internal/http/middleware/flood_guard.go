package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/futureself-ai/futureself/pkg/logging"
)

// FloodGuard throttles the voice webhook. Transcript events arrive at
// conversational pace, a few per second at most per call, so anything
// sustained above the configured rate is a stuck gateway retry loop or an
// abusive caller, not a real conversation.
type FloodGuard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	logger  *logging.Logger
	done    chan struct{}
	once    sync.Once
}

// bucket is a token bucket refilled continuously at the guard's rate.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewFloodGuard allows rate events/sec with the given burst per caller IP.
func NewFloodGuard(rate float64, burst int, logger *logging.Logger) *FloodGuard {
	if logger == nil {
		logger = logging.Default()
	}
	g := &FloodGuard{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go g.evictIdle()
	return g
}

// Allow reports whether one more event from ip fits under the rate.
func (g *FloodGuard) Allow(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	b, ok := g.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(g.burst), lastSeen: now}
		g.buckets[ip] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * g.rate
	if b.tokens > float64(g.burst) {
		b.tokens = float64(g.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Stop terminates the idle-bucket janitor.
func (g *FloodGuard) Stop() {
	g.once.Do(func() { close(g.done) })
}

// evictIdle drops buckets for callers that have gone quiet. A finished call
// stops producing webhook events, so its bucket is garbage within minutes.
func (g *FloodGuard) evictIdle() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			g.mu.Lock()
			for ip, b := range g.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(g.buckets, ip)
				}
			}
			g.mu.Unlock()
		}
	}
}

// Middleware rejects over-rate requests with 429 and logs the rejection so a
// flooding gateway shows up in the logs before it shows up as dropped calls.
func (g *FloodGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		// chi's RealIP middleware resolves the forwarded address first.
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			ip = xri
		}
		if !g.Allow(ip) {
			g.logger.Warn("webhook flood guard rejected request",
				"remote_ip", ip,
				"path", r.URL.Path,
			)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
