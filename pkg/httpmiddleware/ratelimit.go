package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the caller. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. health probes.
	Skip func(*http.Request) bool
}

// counter holds the request counts of the current and the previous fixed
// window for one key.
type counter struct {
	prev, curr float64
	currStart  time.Time
}

// slidingWindow approximates a sliding window by weighting the previous
// fixed window by its overlap with the last Window.
type slidingWindow struct {
	max    float64
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		max:      float64(max),
		window:   window,
		counters: make(map[string]*counter),
	}
}

// take consumes one request for key at now. It reports whether the request is
// allowed, how many remain and when the current window ends.
func (s *slidingWindow) take(key string, now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &counter{currStart: now}
		s.counters[key] = c
	}
	if elapsed := now.Sub(c.currStart); elapsed >= s.window {
		c.prev = c.curr
		if elapsed >= 2*s.window {
			c.prev = 0
		}
		c.curr = 0
		c.currStart = now.Truncate(s.window)
	}

	overlap := math.Max(0, 1-now.Sub(c.currStart).Seconds()/s.window.Seconds())
	used := c.prev*overlap + c.curr
	resetAt = c.currStart.Add(s.window)
	if used >= s.max {
		return false, 0, resetAt
	}
	c.curr++
	return true, max(0, int(s.max-used-1)), resetAt
}

// evict drops keys idle for two windows.
func (s *slidingWindow) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.counters {
		if now.Sub(c.currStart) >= 2*s.window {
			delete(s.counters, key)
		}
	}
}

func (s *slidingWindow) evictEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evict(now)
		}
	}
}

// RateLimit enforces a per-key request budget. Rejected requests get 429
// with a failure envelope and Retry-After; every limited response carries the
// X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, newSlidingWindow(cfg.Max, cfg.Window), time.Now)
}

// RateLimitWithCleanup is RateLimit plus a goroutine, bound to ctx, that
// evicts idle keys every two windows.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	sw := newSlidingWindow(cfg.Max, cfg.Window)
	go sw.evictEvery(ctx, 2*cfg.Window)
	return rateLimit(cfg, sw, time.Now)
}

func rateLimit(cfg RateLimitConfig, sw *slidingWindow, now func() time.Time) Middleware {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			t := now()
			allowed, remaining, resetAt := sw.take(key(r), t)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if !allowed {
				wait := max(resetAt.Sub(t), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeFailure(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by client address: the first X-Forwarded-For hop,
// then X-Real-IP, then the connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PrincipalKey keys requests by the caller identity that resolve extracts
// from a verified credential, so customers sharing an address get separate
// budgets. Requests resolve rejects fall back to ClientIP, which keeps
// unverifiable credentials on the address budget.
func PrincipalKey(resolve func(*http.Request) (string, bool)) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := resolve(r); ok && id != "" {
			return "principal:" + id
		}
		return "ip:" + ClientIP(r)
	}
}

// BearerToken returns the token of a "Bearer" Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// SkipPaths exempts exact request paths from rate limiting.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}
