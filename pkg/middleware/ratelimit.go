package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/httputil"
)

// RateLimitConfig configures per-client token bucket limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// Proxies lists peers whose X-Forwarded-For header is honored. Requests
	// from any other peer are keyed by their socket address.
	Proxies *CIDRSet
	Logger  *slog.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorStore keeps one limiter per client address and evicts idle ones.
type visitorStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	nowFunc  func() time.Time
}

func newVisitorStore(rps float64, burst int, ttl time.Duration) *visitorStore {
	return &visitorStore{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

func (s *visitorStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (s *visitorStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.visitors, key)
		}
	}
}

func (s *visitorStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit returns middleware that answers 429 RATE_LIMITED once a client
// exhausts its bucket. Idle clients are evicted lazily on the request path.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	const idleTTL = 3 * time.Minute
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	store := newVisitorStore(cfg.RPS, cfg.Burst, idleTTL)
	var (
		sweepMu   sync.Mutex
		lastSweep = store.nowFunc()
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sweepMu.Lock()
			if store.nowFunc().Sub(lastSweep) > idleTTL {
				lastSweep = store.nowFunc()
				sweepMu.Unlock()
				store.cleanup()
			} else {
				sweepMu.Unlock()
			}

			ip := ClientIP(r, cfg.Proxies)
			if !store.get(ip).Allow() {
				l.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteFailure(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the address a request originates from. X-Forwarded-For is
// only consulted when the direct peer belongs to proxies, and is walked from
// the right: the first hop outside proxies is the client. Entries left of it
// are client supplied and never used.
func ClientIP(r *http.Request, proxies *CIDRSet) string {
	peer := remoteHost(r)
	if proxies.Empty() || !proxies.Contains(net.ParseIP(peer)) {
		return peer
	}

	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	if len(hops) == 0 {
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
		return peer
	}

	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		client = ip.String()
		if !proxies.Contains(ip) {
			break
		}
	}
	return client
}
