package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
)

// Methods and headers the contacts API accepts from browsers.
var (
	corsMethods        = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}, ", ")
	corsRequestHeaders = strings.Join([]string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"}, ", ")
	corsExposedHeaders = strings.Join([]string{"X-Correlation-ID", "Retry-After", "WWW-Authenticate"}, ", ")
)

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins such as "https://app.example.com".
	// "*" admits any origin.
	AllowedOrigins []string

	// AllowCredentials lets browsers send cookies and auth headers. With a
	// wildcard origin the caller's Origin is echoed back instead of "*".
	AllowCredentials bool

	// MaxAge bounds how long a preflight answer is cached. Defaults to 1h.
	MaxAge time.Duration
}

// DefaultCORSConfig admits every origin without credentials.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: time.Hour}
}

type corsPolicy struct {
	any         bool
	origins     map[string]struct{}
	credentials bool
	maxAge      string
}

func (p corsPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin.
func (p corsPolicy) allowOrigin(origin string) string {
	if p.any && !p.credentials {
		return "*"
	}
	return origin
}

// CORS answers preflight requests itself and decorates every other response
// from an allowed origin. Preflights from other origins get 400.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	p := corsPolicy{
		origins:     make(map[string]struct{}, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		maxAge:      strconv.Itoa(int(maxAge.Seconds())),
	}
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			p.any = true
		}
		p.origins[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !p.allows(origin) {
				if preflight {
					httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
						Detail: "disallowed CORS origin",
						Code:   "CORS_ORIGIN_DENIED",
					})
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", p.allowOrigin(origin))
			if p.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if preflight {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsRequestHeaders)
				h.Set("Access-Control-Max-Age", p.maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
			next.ServeHTTP(w, r)
		})
	}
}
