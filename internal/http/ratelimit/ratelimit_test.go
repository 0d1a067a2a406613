package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestLimiter(t *testing.T, limit rate.Limit, burst int, proxies []string) *Limiter {
	t.Helper()
	l := New(limit, burst, time.Hour, proxies)
	t.Cleanup(l.Stop)
	return l
}

func TestAllowBurstThenThrottle(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(1), 2, nil)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)

	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, wait, float64(10*time.Millisecond))

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "buckets are per client")

	now = now.Add(time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok, "bucket refills over time")
}

func TestMiddlewareRejectsWithJSON(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(0.5), 1, nil)
	h := l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/google-calendar-sync", nil)
	req.RemoteAddr = "192.0.2.10:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{name: "no proxies trusts forwarded header", remote: "10.0.0.1:1234", xff: "203.0.113.5, 10.0.0.1", want: "203.0.113.5"},
		{name: "real ip fallback", remote: "10.0.0.1:1234", realIP: "203.0.113.9", want: "203.0.113.9"},
		{name: "trusted proxy cidr", proxies: []string{"10.0.0.0/8"}, remote: "10.1.2.3:80", xff: "198.51.100.7", want: "198.51.100.7"},
		{name: "untrusted peer ignores header", proxies: []string{"10.0.0.1"}, remote: "192.0.2.1:80", xff: "198.51.100.7", want: "192.0.2.1"},
		{name: "garbage header", remote: "192.0.2.1:80", xff: "not-an-ip", want: "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLimiter(t, rate.Limit(1), 1, tt.proxies)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, l.clientIP(req))
		})
	}
}

func TestSweepForgetsIdleClients(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(1), 1, nil)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(30 * time.Minute)
	l.Allow("10.0.0.2")
	now = now.Add(45 * time.Minute)

	l.sweep()
	assert.Equal(t, 1, l.size())
}

func TestParseProxiesSkipsInvalid(t *testing.T) {
	nets := parseProxies([]string{"10.0.0.0/8", "192.0.2.1", "::1", "bogus", ""})
	assert.Len(t, nets, 3)
}
