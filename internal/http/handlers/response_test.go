package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})

	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, "internal_error", "kaboom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != "internal_error" || resp.Message != "kaboom" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func Test_failErr_MapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"validation", domain.E(domain.KindValidation, "op", "message is too long", nil), http.StatusUnprocessableEntity, ErrCodeInvalidInput, "message is too long"},
		{"not found", domain.E(domain.KindNotFound, "op", "message not found", nil), http.StatusNotFound, ErrCodeNotFound, "message not found"},
		{"transient", domain.E(domain.KindTransient, "docstore.report", "store closed", nil), http.StatusServiceUnavailable, ErrCodeUnavailable, "messages are unavailable right now, try again shortly"},
		{"permission", domain.E(domain.KindPermission, "op", "sign-in rejected", nil), http.StatusForbidden, ErrCodeForbidden, "sign-in rejected"},
		{"configuration", domain.E(domain.KindConfiguration, "op", "missing index", nil), http.StatusServiceUnavailable, ErrCodeConfiguration, "missing index"},
		{"quota", domain.E(domain.KindStorageQuota, "kvstore.set", "bolt: 1048576 of 1048576 bytes used", nil), http.StatusInsufficientStorage, ErrCodeStorageFull, "local storage is full"},
		{"internal domain error", domain.E(domain.KindInternal, "repo.query", "near \"FROM\": syntax error", nil), http.StatusInternalServerError, ErrCodeInternal, "internal server error"},
		{"plain error hides cause", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal, "internal server error"},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { failErr(c, tc.err) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		if w.Code != tc.status {
			t.Fatalf("%s: status=%d want %d", tc.name, w.Code, tc.status)
		}
		var er ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
			t.Fatalf("%s: json: %v", tc.name, err)
		}
		if er.Code != tc.code || er.Message != tc.msg || er.RetryAfterSeconds != 0 {
			t.Fatalf("%s: body=%+v", tc.name, er)
		}
	}
}

func Test_failErr_RateLimitedCarriesRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		failErr(c, &domain.Error{Kind: domain.KindRateLimited, Op: "chat.send", Msg: "slow down", RetryAfter: 27200 * time.Millisecond})
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "28" {
		t.Fatalf("Retry-After=%q", got)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeRateLimited || er.RetryAfterSeconds != 28 {
		t.Fatalf("body=%+v", er)
	}
}

func Test_Fail_And_SuccessHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-404")
		c.Next()
	})
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, "not_found", "nope") })
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"ok": true}) })
	r.DELETE("/gone", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json 404: %v", err)
	}
	if w.Code != http.StatusNotFound || er.RequestID != "rid-404" || er.Code != "not_found" {
		t.Fatalf("unexpected 404: %d %+v", w.Code, er)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("ok helper: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}
}
