package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
)

// RateLimitConfig describes a per-client token bucket.
type RateLimitConfig struct {
	// Name labels the limiter in logs and metrics.
	Name string
	// Requests is the number of requests allowed per Period. It is also the burst.
	Requests int
	Period   time.Duration
	// IdleTTL is how long an idle client's bucket is kept. Defaults to 3 * Period.
	IdleTTL time.Duration
	// TrustedProxies lists the CIDRs of reverse proxies whose X-Forwarded-For
	// and X-Real-IP headers are honoured. Empty means key on RemoteAddr only.
	TrustedProxies []string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorStore keeps one limiter per client IP and evicts idle ones.
type visitorStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	nowFunc  func() time.Time
}

func newVisitorStore(limit rate.Limit, burst int, ttl time.Duration) *visitorStore {
	return &visitorStore{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

func (s *visitorStore) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	v, ok := s.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// cleanupLoop evicts idle visitors every ttl until ctx is cancelled.
func (s *visitorStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *visitorStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.visitors, ip)
		}
	}
}

func (s *visitorStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit returns middleware enforcing cfg per client IP. Requests over the
// limit get 429 with code RATE_LIMITED. The eviction goroutine stops when ctx
// is cancelled.
func RateLimit(ctx context.Context, cfg RateLimitConfig, l *slog.Logger) func(http.Handler) http.Handler {
	store := newRateLimitStore(cfg)
	go store.cleanupLoop(ctx)
	return rateLimitWith(store, cfg.Name, parseCIDRs(cfg.TrustedProxies, l), l)
}

func newRateLimitStore(cfg RateLimitConfig) *visitorStore {
	if cfg.Requests <= 0 {
		cfg.Requests = 1
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 3 * cfg.Period
	}
	return newVisitorStore(rate.Every(cfg.Period/time.Duration(cfg.Requests)), cfg.Requests, ttl)
}

func rateLimitWith(store *visitorStore, name string, trusted []*net.IPNet, l *slog.Logger) func(http.Handler) http.Handler {
	rejected := rateLimitRejections.WithLabelValues(name)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trusted)
			if !store.allow(ip) {
				rejected.Inc()
				l.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("limiter", name),
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "60")
				httputil.WriteError(w, r, apperrors.TooManyRequests("too many requests, try again later"), l)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address a request is rate limited by. Forwarded
// headers are only read when the direct peer is a trusted proxy; the
// X-Forwarded-For chain is then walked right to left and the first hop outside
// the trusted ranges wins.
func clientIP(r *http.Request, trusted []*net.IPNet) string {
	peer := remoteIP(r)
	if !containsIP(trusted, peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !containsIP(trusted, ip.String()) {
				return ip.String()
			}
		}
	}

	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer
}

// remoteIP returns the host part of RemoteAddr.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func containsIP(nets []*net.IPNet, addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parseCIDRs parses cidrs, logging and skipping invalid entries.
func parseCIDRs(cidrs []string, l *slog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			l.Warn("invalid CIDR, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}
