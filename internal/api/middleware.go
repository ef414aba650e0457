package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	clientRate  = rate.Limit(20)
	clientBurst = 50

	// Limiters idle longer than this are evicted on the next lookup sweep.
	limiterTTL = 10 * time.Minute
)

// limiterPool hands out one token bucket per client IP and evicts
// buckets that have gone quiet, so the map cannot grow without bound.
type limiterPool struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	sweepAt time.Time
}

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool() *limiterPool {
	return &limiterPool{
		clients: make(map[string]*clientLimiter),
		sweepAt: time.Now().Add(limiterTTL),
	}
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.After(p.sweepAt) {
		for addr, cl := range p.clients {
			if now.Sub(cl.lastSeen) > limiterTTL {
				delete(p.clients, addr)
			}
		}
		p.sweepAt = now.Add(limiterTTL)
	}

	cl, ok := p.clients[ip]
	if !ok {
		cl = &clientLimiter{bucket: rate.NewLimiter(clientRate, clientBurst)}
		p.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.bucket.Allow()
}

var limiters = newLimiterPool()

// requestTagger assigns each request an ID, honoring one supplied by the
// caller so upstream proxies can correlate their own logs with ours.
func requestTagger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("RequestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// accessLog writes one line per request after the handler chain finishes.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		id := c.GetString("RequestID")
		if len(id) > 8 {
			id = id[:8]
		}
		log.Printf("[API] %s %s %s status=%d took=%v ip=%s",
			id, method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// rateLimit rejects clients that burn through their per-IP token bucket.
func rateLimit(pool *limiterPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !pool.allow(ip) {
			log.Printf("[API] rate limit hit for %s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// withTimeout bounds how long a single request may hold the handler chain.
// The handler runs on its own goroutine; on deadline we answer the client
// and let the handler finish into a buffered channel so it never blocks.
func withTimeout(limit time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), limit)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{}, 1)
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			c.Next()
			done <- struct{}{}
		}()

		select {
		case <-done:
		case p := <-panicked:
			log.Printf("[API] handler panic: %v", p)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
		case <-ctx.Done():
			log.Printf("[API] deadline exceeded: %s %s", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error": "request timeout",
			})
		}
	}
}

// cors answers preflights and stamps permissive headers; the service is
// meant to sit behind a desk-local reverse proxy, not the open internet.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
