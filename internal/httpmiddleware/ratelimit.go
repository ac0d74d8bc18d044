package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc extracts the limiter key for a request.
type KeyFunc func(c *gin.Context) string

// TokenBucket is an in-memory per-key rate limiter. Single-process, like
// the rest of the engine; good enough for a fleet of readers.
type TokenBucket struct {
	capacity int
	rate     int // tokens per minute
	keyFn    KeyFunc
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter keyed by client IP by default.
func NewTokenBucket(capacity, perMinute int, keyFn KeyFunc) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if keyFn == nil {
		keyFn = func(c *gin.Context) string { return c.ClientIP() }
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		keyFn:    keyFn,
		state:    make(map[string]*bucket),
	}
}

// Middleware returns a gin handler enforcing the limit.
func (l *TokenBucket) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := l.keyFn(c)
		if key == "" {
			key = "unknown"
		}
		if !l.allow(key, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
