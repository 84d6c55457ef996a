package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimit_WithinBurst_Passes(t *testing.T) {
	h := RateLimit(RateLimitConfig{RPS: 10, Burst: 10})(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:12345", "").Code, "request %d", i+1)
	}
}

func TestRateLimit_ExceedingBurst_Returns429(t *testing.T) {
	h := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 3})(okHandler())
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "").Code)
	}
	rr := hit(h, "10.0.0.1:1", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1})(okHandler())
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1", "").Code)
}

func TestRateLimit_UntrustedPeerCannotSpoofForwardedFor(t *testing.T) {
	h := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1})(okHandler())
	assert.Equal(t, http.StatusOK, hit(h, "203.0.113.9:1", "1.1.1.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "203.0.113.9:1", "2.2.2.2").Code)
}

func TestRateLimit_ForgedLeadingHopsShareOneBucket(t *testing.T) {
	proxies, err := ParseCIDRs([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	h := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1, Proxies: proxies})(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "198.51.100.0, 203.0.113.7").Code)
	for i := 1; i <= 20; i++ {
		xff := fmt.Sprintf("198.51.100.%d, 203.0.113.7", i)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", xff).Code, xff)
	}
}

func TestClientIP(t *testing.T) {
	proxies, err := ParseCIDRs([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		proxies *CIDRSet
		remote  string
		xff     []string
		want    string
	}{
		{"no proxies configured", nil, "10.1.1.1:80", []string{"1.2.3.4"}, "10.1.1.1"},
		{"trusted proxy", proxies, "10.1.1.1:80", []string{"1.2.3.4, 10.1.1.1"}, "1.2.3.4"},
		{"untrusted peer", proxies, "198.51.100.7:80", []string{"1.2.3.4"}, "198.51.100.7"},
		{"garbage header", proxies, "10.1.1.1:80", []string{"not-an-ip"}, "10.1.1.1"},
		{"forged leading hop ignored", proxies, "10.0.0.1:80", []string{"198.51.100.9, 203.0.113.7"}, "203.0.113.7"},
		{"chain of trusted hops", proxies, "10.0.0.1:80", []string{"203.0.113.7, 10.2.0.1, 10.3.0.1"}, "203.0.113.7"},
		{"garbage left of client", proxies, "10.0.0.1:80", []string{"junk, 203.0.113.7"}, "203.0.113.7"},
		{"repeated headers", proxies, "10.0.0.1:80", []string{"198.51.100.9", "203.0.113.7"}, "203.0.113.7"},
		{"only trusted hops", proxies, "10.0.0.1:80", []string{"10.9.9.9"}, "10.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, ClientIP(req, tt.proxies))
		})
	}
}

func TestClientIP_RealIPWithoutForwardedFor(t *testing.T) {
	proxies, err := ParseCIDRs([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Real-IP", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", ClientIP(req, proxies))
}

func TestVisitorStore_CleanupEvictsIdle(t *testing.T) {
	s := newVisitorStore(1, 1, time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return base }
	s.get("a")
	s.nowFunc = func() time.Time { return base.Add(30 * time.Second) }
	s.get("b")

	s.nowFunc = func() time.Time { return base.Add(80 * time.Second) }
	s.cleanup()
	assert.Equal(t, 1, s.len())
}
