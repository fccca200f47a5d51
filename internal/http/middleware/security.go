package middleware

// Response hardening for the JSON and event-stream API served to the UI
// shell. No CSP is set since the API serves no HTML.

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions selects the optional headers emitted by SecurityHeaders.
//
// HSTS is only ever sent on HTTPS requests; the default loopback listener
// never sees one. HSTSMaxAge defaults to 180 days.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStore      bool // Cache-Control: no-store on regular responses
	EnablePolicy bool // Permissions-Policy and friends
}

type header struct{ name, value string }

var baselineHeaders = []header{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

var policyHeaders = []header{
	// The shell never needs location, media or payment access from the API origin.
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
}

var noStoreHeaders = []header{
	{"Cache-Control", "no-store"},
	{"Pragma", "no-cache"},
	{"Expires", "0"},
}

// Event streams must not be buffered by intermediaries.
var streamHeaders = []header{
	{"Cache-Control", "no-cache"},
	{"X-Accel-Buffering", "no"},
}

// SecurityHeaders sets the baseline headers on every response plus the
// optional groups selected in opt. Requests accepting text/event-stream get
// stream cache headers instead of no-store. Handlers may still override any
// of them. When a request id is present it is added to
// Access-Control-Expose-Headers so the shell can show it in error reports.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		set := func(hs []header) {
			for _, x := range hs {
				h.Set(x.name, x.value)
			}
		}

		set(baselineHeaders)
		if opt.EnablePolicy {
			set(policyHeaders)
		}
		switch {
		case wantsEventStream(c.Request):
			set(streamHeaders)
		case opt.NoStore:
			set(noStoreHeaders)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers unless listed.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// isHTTPS reports whether r arrived over TLS directly or via a proxy that
// set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
