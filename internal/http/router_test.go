package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campus-chat/internal/config"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/feed"
	"github.com/tbourn/go-campus-chat/internal/http/middleware"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
	"github.com/tbourn/go-campus-chat/internal/services"
)

// --- minimal chat client; the handlers package tests the endpoints themselves ---
type fakeClient struct {
	mu    sync.Mutex
	sends int
}

func (*fakeClient) Session() services.SessionInfo {
	return services.SessionInfo{ID: "sess-1", DisplayName: "Quiet Owl", HasName: true}
}
func (*fakeClient) ChooseName(context.Context, string) (string, error) { return "Quiet Owl", nil }
func (*fakeClient) ForgetName(context.Context) error                   { return nil }
func (*fakeClient) Channels() []services.ChannelInfo {
	return []services.ChannelInfo{{ID: "general", Kind: "general", Partitioned: true}}
}
func (*fakeClient) OpenChannel(context.Context, string) error { return nil }
func (*fakeClient) LoadMore(context.Context) (int, error)     { return 0, nil }
func (f *fakeClient) Send(_ context.Context, text, _ string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return domain.Message{ID: "m-1", Channel: "general", Username: "Quiet Owl", Content: text}, nil
}
func (*fakeClient) Report(context.Context, string) (domain.Message, error) {
	return domain.Message{}, nil
}
func (*fakeClient) Locate(context.Context, string) (int, error) { return 0, nil }
func (*fakeClient) View() feed.View {
	return feed.View{Channel: "general", State: feed.Live, Messages: []domain.Message{
		{ID: "m-0", Channel: "general", Username: "Quiet Owl", Content: strings.Repeat("padding ", 200)},
	}}
}
func (f *fakeClient) Watch(context.Context) <-chan feed.View {
	ch := make(chan feed.View, 1)
	ch <- f.View()
	close(ch)
	return ch
}
func (*fakeClient) CloseView(context.Context) {}

func (f *fakeClient) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// streamRecorder adds CloseNotify, which gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
}

func (streamRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Minute,
	}
}

func newEngine(t *testing.T, cfg config.Config) (*gin.Engine, *fakeClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	fc := &fakeClient{}
	RegisterRoutes(r, fc, kvstore.NewMemory(0), cfg)
	return r, fc
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newEngine(t, baseConfig())

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// swagger is off by default
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled expected 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}
	r, _ := newEngine(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v2/session = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_APIRoutesMounted(t *testing.T) {
	r, _ := newEngine(t, baseConfig())

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/api/v1/session", "", http.StatusOK},
		{http.MethodPut, "/api/v1/session/name", `{"name":"Quiet Owl"}`, http.StatusOK},
		{http.MethodDelete, "/api/v1/session/name", "", http.StatusNoContent},
		{http.MethodGet, "/api/v1/channels", "", http.StatusOK},
		{http.MethodPost, "/api/v1/channels/general/open", "", http.StatusOK},
		{http.MethodGet, "/api/v1/feed", "", http.StatusOK},
		{http.MethodPost, "/api/v1/feed/more", "", http.StatusOK},
		{http.MethodPost, "/api/v1/feed/messages", `{"content":"hi"}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/messages/m-1/report", "", http.StatusOK},
		{http.MethodGet, "/api/v1/messages/m-1/locate", "", http.StatusOK},
		{http.MethodDelete, "/api/v1/feed", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		if tc.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %s = %d; want %d (body=%s)", tc.method, tc.path, w.Code, tc.want, w.Body.String())
		}
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix_and_joinPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}

	if joinPath("/", streamPath) != "/feed/stream" || joinPath("/api/v1", streamPath) != "/api/v1/feed/stream" {
		t.Fatalf("joinPath mismatch")
	}
}

// Smoke test that a request traverses the whole middleware pipeline.
func TestPipeline_Smoke(t *testing.T) {
	cfg := baseConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r, _ := newEngine(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /session = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("expected HSTS on forwarded https")
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store on API responses, got %q", w.Header().Get("Cache-Control"))
	}
}

func TestRegisterRoutes_IdempotentSendReplaysAndBypassesLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, fc := newEngine(t, cfg)

	post := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/feed/messages", strings.NewReader(`{"content":"hello"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderIdempotencyKey, "send-key-0001")
		r.ServeHTTP(w, req)
		return w
	}

	first := post()
	if first.Code != http.StatusCreated {
		t.Fatalf("first send = %d; body=%s", first.Code, first.Body.String())
	}

	// The bucket is empty now; a replay must bypass the limiter.
	second := post()
	if second.Code != http.StatusOK {
		t.Fatalf("replayed send = %d; body=%s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected Idempotency-Replayed header")
	}
	if fc.sendCount() != 1 {
		t.Fatalf("client sends = %d; want 1", fc.sendCount())
	}

	// A fresh request without a key is limited.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", w.Code)
	}
}

func TestRegisterRoutes_GzipExceptStream(t *testing.T) {
	r, _ := newEngine(t, baseConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("feed: code=%d encoding=%q", w.Code, w.Header().Get("Content-Encoding"))
	}

	sw := streamRecorder{httptest.NewRecorder()}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/feed/stream", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/event-stream")
	r.ServeHTTP(sw, req)
	if enc := sw.Header().Get("Content-Encoding"); enc != "" {
		t.Fatalf("stream must not be compressed, got %q", enc)
	}
	if !strings.Contains(sw.Body.String(), "event:view") {
		t.Fatalf("expected a view event, got %q", sw.Body.String())
	}
}

func TestRegisterRoutes_SwaggerEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	r, _ := newEngine(t, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"/feed/messages"`) || !strings.Contains(w.Body.String(), `"basePath": "/api/v1"`) {
		t.Fatalf("unexpected swagger doc: %.200s", w.Body.String())
	}
}
