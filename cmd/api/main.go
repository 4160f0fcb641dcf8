package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/copacabanabeauty/salon-booking/internal/api/router"
	"github.com/copacabanabeauty/salon-booking/internal/availability"
	"github.com/copacabanabeauty/salon-booking/internal/calendar"
	"github.com/copacabanabeauty/salon-booking/internal/checkout"
	appconfig "github.com/copacabanabeauty/salon-booking/internal/config"
	httpmiddleware "github.com/copacabanabeauty/salon-booking/internal/http/middleware"
	"github.com/copacabanabeauty/salon-booking/internal/observability/metrics"
	"github.com/copacabanabeauty/salon-booking/internal/payments"
	"github.com/copacabanabeauty/salon-booking/internal/session"
	"github.com/copacabanabeauty/salon-booking/internal/webhook"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting salon booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildHandler wires every service behind the router. Providers whose
// credentials are absent stay unset so the affected routes report the missing
// setting instead of failing at startup.
func buildHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (http.Handler, func(), error) {
	roster, err := cfg.Roster()
	if err != nil {
		return nil, nil, fmt.Errorf("load staff roster: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("unknown business timezone, using UTC", "timezone", cfg.BusinessTimezone, "error", err)
	}
	source := availability.ParseSource(cfg.AvailabilitySource)

	metricsHandler, bookingMetrics := setupMetrics()
	cal := setupCalendar(ctx, cfg, bookingMetrics, logger)
	payClient, verifier := setupPayments(cfg, bookingMetrics, logger)
	redisClient := setupRedis(ctx, cfg, logger)

	availabilitySvc := availability.NewService(cal, roster, loc, logger).
		WithSource(source).
		WithMetrics(bookingMetrics)

	checkoutSvc := checkout.NewService(payClient, roster, checkout.Config{
		SalonName:     cfg.SalonName,
		DepositAmount: int64(cfg.DepositAmount),
		Currency:      cfg.DepositCurrency,
		SiteURL:       cfg.SiteURL,
	}, logger).WithMetrics(bookingMetrics)
	if redisClient != nil {
		checkoutSvc = checkoutSvc.WithVelocityGuard(checkout.NewVelocityGuard(redisClient, checkout.VelocityConfig{
			MaxPerEmail: cfg.CheckoutMaxPerEmail,
			Window:      cfg.CheckoutWindow,
		}, logger))
	}

	reconciler := webhook.NewReconciler(verifier, cal, roster, logger).WithMetrics(bookingMetrics)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	r := router.New(&router.Config{
		Logger:               logger,
		AvailabilityHandler:  availability.NewHandler(availabilitySvc, logger),
		CheckoutHandler:      checkout.NewHandler(checkoutSvc, logger),
		SessionHandler:       session.NewHandler(session.NewLookup(payClient, logger), logger),
		WebhookHandler:       webhook.NewHandler(reconciler, logger),
		MetricsHandler:       metricsHandler,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		TrustProxyHeaders:    cfg.TrustProxyHeaders,
		CheckoutLimiter:      limiter,
		EnableDebugEndpoints: cfg.EnableDebugEndpoints,
	})

	cleanup := func() {
		if limiter != nil {
			limiter.Stop()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return r, cleanup, nil
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// setupCalendar returns nil when no service account is configured. The
// interface value must stay untyped nil so services can detect it.
func setupCalendar(ctx context.Context, cfg *appconfig.Config, m *metrics.BookingMetrics, logger *logging.Logger) calendar.Client {
	creds := strings.TrimSpace(cfg.GoogleServiceAccountJSON)
	if creds == "" {
		logger.Warn("GOOGLE_SERVICE_ACCOUNT_JSON not set; calendar routes will report missing configuration")
		return nil
	}
	client, err := calendar.NewGoogleClient(ctx, []byte(creds), gcal.CalendarScope, logger)
	if err != nil {
		logger.Error("failed to initialize google calendar client", "error", err)
		return nil
	}
	return client.WithTimeZone(cfg.BusinessTimezone).WithMetrics(m)
}

func setupPayments(cfg *appconfig.Config, m *metrics.BookingMetrics, logger *logging.Logger) (payments.Client, payments.WebhookVerifier) {
	key := strings.TrimSpace(cfg.StripeSecretKey)
	secret := strings.TrimSpace(cfg.StripeWebhookSecret)
	if key == "" && secret == "" && !cfg.StripeDryRun {
		logger.Warn("stripe not configured; checkout and webhook routes will report missing configuration")
		return nil, nil
	}

	stripeClient := payments.NewStripeClient(payments.StripeConfig{
		SecretKey:     key,
		WebhookSecret: secret,
		DryRun:        cfg.StripeDryRun,
	}, logger).WithMetrics(m)

	var client payments.Client
	if key != "" || cfg.StripeDryRun {
		client = stripeClient
	}
	var verifier payments.WebhookVerifier
	if secret != "" {
		verifier = stripeClient
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; webhook deliveries will be rejected")
	}
	return client, verifier
}

// setupRedis returns nil when REDIS_ADDR is empty or unreachable, which turns
// checkout velocity limiting off.
func setupRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; checkout velocity limiting disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.RedisAddr)
	return client
}
