package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/copacabanabeauty/salon-booking/internal/config"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, metrics := setupMetrics()
	if handler == nil || metrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	metrics.ObserveWebhook("created")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "salon_webhook_events_total") {
		t.Fatalf("expected webhook counter to be exported")
	}
}

func TestSetupCalendarWithoutCredentialsReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{}
	if cal := setupCalendar(context.Background(), cfg, nil, logging.Discard()); cal != nil {
		t.Fatalf("expected nil calendar client")
	}
	cfg.GoogleServiceAccountJSON = "not json"
	if cal := setupCalendar(context.Background(), cfg, nil, logging.Discard()); cal != nil {
		t.Fatalf("expected nil calendar client for malformed credentials")
	}
}

func TestSetupPayments(t *testing.T) {
	logger := logging.Discard()

	client, verifier := setupPayments(&appconfig.Config{}, nil, logger)
	if client != nil || verifier != nil {
		t.Fatalf("expected no stripe clients without keys")
	}

	client, verifier = setupPayments(&appconfig.Config{StripeSecretKey: "sk_test_123"}, nil, logger)
	if client == nil {
		t.Fatalf("expected checkout client")
	}
	if verifier != nil {
		t.Fatalf("expected webhook verifier to stay unset without a secret")
	}

	client, verifier = setupPayments(&appconfig.Config{StripeWebhookSecret: "whsec_test"}, nil, logger)
	if client != nil || verifier == nil {
		t.Fatalf("expected verifier only, got client=%v verifier=%v", client, verifier)
	}

	client, _ = setupPayments(&appconfig.Config{StripeDryRun: true}, nil, logger)
	if client == nil {
		t.Fatalf("expected dry-run checkout client")
	}
}

func TestSetupRedis(t *testing.T) {
	logger := logging.Discard()
	if c := setupRedis(context.Background(), &appconfig.Config{}, logger); c != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	c := setupRedis(context.Background(), &appconfig.Config{RedisAddr: addr}, logger)
	if c == nil {
		t.Fatalf("expected connected client")
	}
	_ = c.Close()

	mr.Close()
	if c := setupRedis(context.Background(), &appconfig.Config{RedisAddr: addr}, logger); c != nil {
		t.Fatalf("expected nil client when redis is unreachable")
	}
}

func TestBuildHandlerServesRoutesWithoutProviders(t *testing.T) {
	cfg := &appconfig.Config{
		SalonName:          "Copacabana Beauty",
		BusinessTimezone:   "Europe/London",
		AvailabilitySource: "freebusy",
		DepositAmount:      2000,
		DepositCurrency:    "gbp",
		CheckoutWindow:     time.Hour,
		RateLimitRPS:       10,
		RateLimitBurst:     10,
	}
	handler, cleanup, err := buildHandler(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	defer cleanup()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/availability", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without calendar credentials, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "GOOGLE_SERVICE_ACCOUNT_JSON") {
		t.Fatalf("expected missing setting to be named, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "salon_availability_requests_total") {
		t.Fatalf("expected availability counter after a request")
	}
}

func TestBuildHandlerRejectsBadRosterFile(t *testing.T) {
	cfg := &appconfig.Config{StaffConfigFile: t.TempDir() + "/missing.yaml"}
	if _, _, err := buildHandler(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected roster error")
	}
}
