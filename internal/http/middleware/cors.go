package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig describes which browser origins may call the booking API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins; "*" echoes any origin back.
	AllowedOrigins []string
	// MaxAge is how long browsers may cache a preflight. Zero means 10 minutes.
	MaxAge time.Duration
	// ServerOnlyPaths are called by servers, never browsers (the Stripe
	// webhook). They get no CORS headers and preflights to them are refused.
	ServerOnlyPaths []string
}

const (
	corsAllowedMethods = "GET, POST, OPTIONS"
	corsAllowedHeaders = "Content-Type, X-Request-ID"
	corsExposedHeaders = "X-Request-ID"
)

type corsPolicy struct {
	allowAny   bool
	origins    map[string]struct{}
	maxAge     string
	serverOnly map[string]struct{}
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:    map[string]struct{}{},
		serverOnly: map[string]struct{}{},
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			p.allowAny = true
		default:
			p.origins[origin] = struct{}{}
		}
	}
	for _, path := range cfg.ServerOnlyPaths {
		if path = strings.TrimSpace(path); path != "" {
			p.serverOnly[path] = struct{}{}
		}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	p.maxAge = strconv.Itoa(int(maxAge / time.Second))
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if p.allowAny {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// CORS lets the booking pages call the API from another origin. Requests
// without an Origin header pass through unchanged. A preflight from an origin
// that is not allowed, or to a server-only path, is answered with 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != ""
			_, serverOnly := p.serverOnly[r.URL.Path]

			if origin == "" || serverOnly {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			allowed := p.allows(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
			}

			if preflight {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				h := w.Header()
				h.Add("Vary", "Access-Control-Request-Method")
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Max-Age", p.maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
