package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/avess/gallery-bed/api/common"
)

type clientBucket struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter applies a token bucket per client address. Buckets are
// created on first sight and evicted again after ttl without a request.
type ClientRateLimiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	clients map[string]*clientBucket

	done chan struct{}
}

func NewClientRateLimiter(rps float64, burst int, ttl time.Duration) *ClientRateLimiter {
	l := &ClientRateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     ttl,
		clients: make(map[string]*clientBucket),
		done:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Middleware returns the gin handler enforcing the per-client limit.
func (l *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(clientAddr(c)) {
			common.RespondError(c, http.StatusTooManyRequests, "Too many requests.")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Close stops the background eviction loop.
func (l *ClientRateLimiter) Close() {
	close(l.done)
}

func (l *ClientRateLimiter) allow(addr string) bool {
	l.mu.Lock()
	client, ok := l.clients[addr]
	if !ok {
		client = &clientBucket{bucket: rate.NewLimiter(l.rps, l.burst)}
		l.clients[addr] = client
	}
	client.lastSeen = time.Now()
	l.mu.Unlock()

	return client.bucket.Allow()
}

// sweep drops every bucket last seen before cutoff.
func (l *ClientRateLimiter) sweep(cutoff time.Time) {
	l.mu.Lock()
	for addr, client := range l.clients {
		if client.lastSeen.Before(cutoff) {
			delete(l.clients, addr)
		}
	}
	l.mu.Unlock()
}

func (l *ClientRateLimiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now().Add(-l.ttl))
		case <-l.done:
			return
		}
	}
}

// clientAddr prefers the first forwarded hop so clients behind a proxy are
// limited individually rather than as one bucket per proxy.
func clientAddr(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}
