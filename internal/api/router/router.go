package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/copacabanabeauty/salon-booking/internal/availability"
	"github.com/copacabanabeauty/salon-booking/internal/checkout"
	httpmiddleware "github.com/copacabanabeauty/salon-booking/internal/http/middleware"
	"github.com/copacabanabeauty/salon-booking/internal/session"
	"github.com/copacabanabeauty/salon-booking/internal/webhook"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

// webhookPath is called by Stripe only and is excluded from CORS.
const webhookPath = "/api/stripe-webhook"

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AvailabilityHandler *availability.Handler
	CheckoutHandler     *checkout.Handler
	SessionHandler      *session.Handler
	WebhookHandler      *webhook.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// TrustProxyHeaders lets chi's RealIP rewrite RemoteAddr from
	// X-Real-IP/X-Forwarded-For. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool

	// CheckoutLimiter throttles create-checkout per client IP (optional).
	CheckoutLimiter *httpmiddleware.RateLimiter

	// EnableDebugEndpoints mounts /api/debug-session.
	EnableDebugEndpoints bool
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowedOrigins:  cfg.CORSAllowedOrigins,
			ServerOnlyPaths: []string{webhookPath},
		}))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.AvailabilityHandler != nil {
			api.Get("/availability", cfg.AvailabilityHandler.ServeHTTP)
		}
		if cfg.CheckoutHandler != nil {
			create := http.Handler(cfg.CheckoutHandler)
			if cfg.CheckoutLimiter != nil {
				create = cfg.CheckoutLimiter.Middleware(create)
			}
			api.Method(http.MethodPost, "/create-checkout", create)
		}
		if cfg.SessionHandler != nil {
			api.Get("/get-session", cfg.SessionHandler.GetSession)
			if cfg.EnableDebugEndpoints {
				api.Get("/debug-session", cfg.SessionHandler.DebugSession)
			}
		}
		if cfg.WebhookHandler != nil {
			// Signature checks need the raw body, so nothing may decode or
			// compress it before the handler.
			api.Method(http.MethodPost, "/stripe-webhook", cfg.WebhookHandler)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
