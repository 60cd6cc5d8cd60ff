package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	w.WriteHeader(http.StatusOK)
})

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/proxy/router/list":       "/api/proxy/*",
		"/api/sessions/01HZX":          "/api/sessions/:id",
		"/api/sessions/01HZX/messages": "/api/sessions/:id/messages",
		"/api/sessions/01HZX/sources":  "/api/sessions/:id/sources",
		"/api/sessions/":               "/api/sessions/",
		"/router/list":                 "/router/list",
		"/health":                      "/health",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestFindLimit(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	tests := []struct {
		method, path string
		want         int
		window       time.Duration
	}{
		{http.MethodPost, "/api/sessions/abc/messages", 30, time.Minute},
		{http.MethodPost, "/api/sessions", 20, time.Hour},
		{http.MethodPut, "/api/sessions/abc/sources", 60, time.Minute},
		{http.MethodPost, "/contact", 5, time.Hour},
		{http.MethodGet, "/api/proxy/sburl", 120, time.Minute},
		{http.MethodPost, "/api/proxy/api/v1/send/msg", 120, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			l := rl.findLimit(httptest.NewRequest(tt.method, tt.path, nil))
			require.NotNil(t, l)
			assert.Equal(t, tt.want, l.Requests)
			assert.Equal(t, tt.window, l.Window)
		})
	}

	assert.Nil(t, rl.findLimit(httptest.NewRequest(http.MethodGet, "/health", nil)))
}

func TestWhitelist(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{
		Whitelist: []string{"10.0.0.0/8", "192.168.1.7", "not-a-cidr/99"},
	})

	assert.True(t, rl.isWhitelisted("10.1.2.3"))
	assert.True(t, rl.isWhitelisted("192.168.1.7"))
	assert.False(t, rl.isWhitelisted("192.168.1.8"))
	assert.False(t, rl.isWhitelisted("garbage"))
}

func TestKeys(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/sessions/abc/messages", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "203.0.113.9", RealIP(r))
	assert.Equal(t, "ratelimit:ip:203.0.113.9", ipKey(r))
	assert.Equal(t, "ratelimit:session:abc:203.0.113.9", sessionKey(r))
}

func TestRequireJSON(t *testing.T) {
	h := RequireJSON(okHandler)

	r := httptest.NewRequest(http.MethodPost, "/router", strings.NewReader("name=x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	r = httptest.NewRequest(http.MethodPost, "/router", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRejectSuspicious(t *testing.T) {
	h := RejectSuspicious(okHandler)

	tests := map[string]int{
		"/api/proxy/../etc/passwd": http.StatusBadRequest,
		"/api/proxy/x?q=<script>":  http.StatusBadRequest,
		"/api/proxy/api/v1/send/msg?x-syft-url=syft%3A%2F%2Fa%40x%2Fapp_data": http.StatusOK,
	}
	for target, want := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, want, rec.Code, target)
	}
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(8)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
}

func TestParseWhitelist(t *testing.T) {
	prefixes, invalid := parseWhitelist([]string{" 10.1.2.3/8 ", "2001:db8::1", "", "bogus", "300.1.1.1"})

	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "2001:db8::1/128", prefixes[1].String())
	assert.Equal(t, []string{"bogus", "300.1.1.1"}, invalid)
}

func TestWindowBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 34, 56, 0, time.UTC)

	start := windowStart(now, time.Minute)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 34, 0, 0, time.UTC), start)
	assert.Equal(t, "ratelimit:ip:1.2.3.4:"+strconv.FormatInt(start.Unix(), 10), bucketKey("ratelimit:ip:1.2.3.4", start))

	// Requests a few seconds apart in the same window share a bucket.
	assert.Equal(t, start, windowStart(now.Add(3*time.Second), time.Minute))
	assert.NotEqual(t, start, windowStart(now.Add(5*time.Second), time.Minute))

	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), windowStart(now, time.Hour))
}

func TestRetryAfter(t *testing.T) {
	now := time.Unix(1000, 0)
	assert.Equal(t, 5, retryAfter(now, now.Add(4200*time.Millisecond)))
	assert.Equal(t, 1, retryAfter(now, now))
	assert.Equal(t, 1, retryAfter(now, now.Add(-time.Second)))
}

func TestRateLimitPassesWithoutCounting(t *testing.T) {
	// No Redis client: any attempt to count would panic.
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{Whitelist: []string{"203.0.113.0/24"}})
	h := rl.Middleware(okHandler)

	t.Run("whitelisted", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/contact", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.50")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("unlimited path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
