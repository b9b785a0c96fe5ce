package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TokenBucket is an in-memory per-client rate limiter. Buckets refill
// continuously at rate tokens per minute up to capacity. Stale buckets are
// pruned opportunistically so the map does not grow without bound during
// a registration rush.
type TokenBucket struct {
	capacity float64
	perMin   float64

	mu        sync.Mutex
	state     map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

const pruneInterval = 5 * time.Minute

// NewTokenBucket creates a limiter allowing perMinute requests per client
// with bursts up to capacity.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity:  float64(capacity),
		perMin:    float64(perMinute),
		state:     make(map[string]*bucket),
		lastPrune: time.Now(),
	}
}

// Middleware returns a gin handler enforcing per-IP limits. Rejections
// carry a Retry-After hint.
func (l *TokenBucket) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > pruneInterval {
		for k, b := range l.state {
			if now.Sub(b.last) > pruneInterval {
				delete(l.state, k)
			}
		}
		l.lastPrune = now
	}

	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}

	b.tokens += now.Sub(b.last).Minutes() * l.perMin
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
