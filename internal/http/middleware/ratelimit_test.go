package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyBySessionOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if key := KeyBySessionOrIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("key = %q; want ip:203.0.113.9", key)
	}
	c.Set(sessionIDKey, "anon-123")
	if key := KeyBySessionOrIP()(c); key != "session:anon-123" {
		t.Fatalf("key = %q; want session:anon-123", key)
	}
}

func TestRateLimiter_BucketsReusedAndBurstFloor(t *testing.T) {
	rl := NewRateLimiter(2, 0, KeyBySessionOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d; want 1", rl.burst)
	}
	now := time.Now()
	a := rl.limiterFor("session:a", now)
	if rl.limiterFor("session:a", now.Add(time.Second)) != a {
		t.Fatalf("bucket not reused")
	}
	if rl.limiterFor("session:b", now) == a {
		t.Fatalf("distinct keys share a bucket")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyBySessionOrIP())
	now := time.Now()

	rl.mu.Lock()
	rl.buckets["idle"] = &bucket{lim: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Hour)}
	rl.buckets["fresh"] = &bucket{lim: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Minute)}
	rl.lookups = sweepEvery - 1
	rl.mu.Unlock()

	rl.limiterFor("new", now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["idle"]; ok {
		t.Fatalf("idle bucket survived the sweep")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Fatalf("fresh bucket swept")
	}
	if _, ok := rl.buckets["new"]; !ok || rl.lookups != 0 {
		t.Fatalf("new bucket missing or counter not reset (%d)", rl.lookups)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if IsRateBypass(c) {
		t.Fatalf("bypass by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("bypass not seen")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("non-bool read as bypass")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		10 * time.Millisecond:   1,
		1500 * time.Millisecond: 2,
		59 * time.Second:        59,
		time.Minute:             60,
		time.Hour:               60,
	}
	for wait, want := range cases {
		if got := retryAfterSeconds(wait); got != want {
			t.Fatalf("retryAfterSeconds(%v) = %d; want %d", wait, got, want)
		}
	}
}

func TestRateLimiter_Handler_AllowDenyBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1, KeyBySessionOrIP())

	r := gin.New()
	r.Use(RequestID())
	r.Use(SessionID(func() string { return "anon-1" }))
	r.Use(rl.Handler())
	r.GET("/feed", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(h http.Handler) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed", nil))
		return w
	}

	if w := get(r); w.Code != http.StatusOK {
		t.Fatalf("first: %d", w.Code)
	}
	w := get(r)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second: %d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["code"] != "rate_limited" || body["retry_after_seconds"] != float64(1) || body["request_id"] == "" {
		t.Fatalf("body: %v", body)
	}

	// Same session, replay flagged upstream: no token needed.
	bypass := gin.New()
	bypass.Use(SessionID(func() string { return "anon-1" }))
	bypass.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	bypass.Use(rl.Handler())
	bypass.GET("/feed", func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := get(bypass); w.Code != http.StatusOK {
		t.Fatalf("bypass: %d", w.Code)
	}
}
