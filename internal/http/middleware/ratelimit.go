package middleware

// Edge limiter of the UI-shell API: in-memory token buckets per session (or
// client IP). It only protects the local process from a runaway shell; the
// per-channel send limits live in the chat client.

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL   = 10 * time.Minute
	sweepEvery      = 5000 // lookups between idle-bucket sweeps
	maxRetryAfterS  = 60
	rateLimitedCode = "rate_limited"
)

// keyFunc selects the bucket a request is charged to.
type keyFunc func(*gin.Context) string

// KeyBySessionOrIP charges the chat session set by SessionID and falls back
// to the client IP ("session:anon-1" vs "ip:127.0.0.1").
func KeyBySessionOrIP() keyFunc {
	return func(c *gin.Context) string {
		if sid := SessionIDFrom(c); sid != "" {
			return "session:" + sid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter, safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

// NewRateLimiter builds a limiter of rps tokens per second. burst <= 0 means 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		keyFn:   keyFn,
		ttl:     bucketIdleTTL,
		buckets: make(map[string]*bucket),
	}
}

// limiterFor returns the bucket for key, creating it if absent.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= sweepEvery {
		rl.sweepLocked(now)
		rl.lookups = 0
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.ttl {
			delete(rl.buckets, k)
		}
	}
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay, which is served without consuming a token.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler enforces the limits. Denied requests get 429 with the standard
// error envelope and Retry-After set to the time until the next token,
// capped at a minute.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		res := rl.limiterFor(rl.keyFn(c), time.Now()).Reserve()
		wait := res.Delay()
		if wait == 0 {
			c.Next()
			return
		}
		res.Cancel()

		secs := retryAfterSeconds(wait)
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id":          c.Writer.Header().Get(requestIDHeader),
			"code":                rateLimitedCode,
			"message":             "too many requests",
			"retry_after_seconds": secs,
		})
	}
}

// retryAfterSeconds rounds wait up to whole seconds within [1, 60].
func retryAfterSeconds(wait time.Duration) int {
	if wait >= maxRetryAfterS*time.Second {
		return maxRetryAfterS
	}
	return max(1, int(math.Ceil(wait.Seconds())))
}
