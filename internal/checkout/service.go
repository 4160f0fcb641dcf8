// Package checkout turns a chosen slot into a hosted deposit payment page.
// The payment session metadata is the only record of the booking until the
// webhook confirms it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/observability/metrics"
	"github.com/copacabanabeauty/salon-booking/internal/payments"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

var tracer = otel.Tracer("salon.internal.checkout")

// ErrTooManyAttempts is returned when the velocity guard rejects an intent.
var ErrTooManyAttempts = errors.New("checkout: too many checkout attempts")

// ProviderError wraps a payment provider failure.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("checkout: create session: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config holds deposit settings.
type Config struct {
	SalonName     string
	DepositAmount int64
	Currency      string
	// SiteURL overrides the request-derived redirect base.
	SiteURL string
}

// Intent is a booking awaiting its deposit.
type Intent struct {
	Booking booking.Request
	// BaseURL is the request-derived redirect base, used when SiteURL is unset.
	BaseURL string
}

// Service creates deposit checkout sessions.
type Service struct {
	payments payments.Client
	roster   *booking.Roster
	config   Config
	velocity *VelocityGuard
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewService builds a Service. client may be nil when STRIPE_SECRET_KEY is not
// set; intents then fail with a ConfigError.
func NewService(client payments.Client, roster *booking.Roster, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "gbp"
	}
	if cfg.DepositAmount <= 0 {
		cfg.DepositAmount = 2000
	}
	return &Service{
		payments: client,
		roster:   roster,
		config:   cfg,
		logger:   logger,
	}
}

// WithVelocityGuard enables per-email attempt limits.
func (s *Service) WithVelocityGuard(v *VelocityGuard) *Service {
	s.velocity = v
	return s
}

// WithMetrics enables checkout counters.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// CreateIntent validates the booking, opens exactly one checkout session and
// returns its hosted URL.
func (s *Service) CreateIntent(ctx context.Context, in Intent) (string, error) {
	ctx, span := tracer.Start(ctx, "checkout.create_intent")
	defer span.End()

	req := in.Booking
	req.StaffKey = strings.TrimSpace(req.StaffKey)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)

	if err := req.Validate(); err != nil {
		s.metrics.ObserveCheckout("invalid")
		return "", err
	}
	if s.payments == nil {
		s.metrics.ObserveCheckout("config_error")
		return "", &booking.ConfigError{Field: "STRIPE_SECRET_KEY"}
	}

	base := s.redirectBase(in.BaseURL)
	if base == "" {
		s.metrics.ObserveCheckout("config_error")
		return "", &booking.ConfigError{Field: "SITE_URL"}
	}

	if res := s.velocity.Check(ctx, req.CustomerEmail); !res.Allowed {
		s.metrics.ObserveCheckout("rate_limited")
		return "", fmt.Errorf("%w: %s", ErrTooManyAttempts, res.Message)
	}

	staffDisplay := s.roster.DisplayName(req.StaffKey, req.StaffName)
	req.StaffName = staffDisplay
	span.SetAttributes(attribute.String("salon.staff_key", req.StaffKey))

	params := payments.CheckoutParams{
		AmountMinor:   s.config.DepositAmount,
		Currency:      s.config.Currency,
		ProductName:   fmt.Sprintf("%s Deposit (%s)", s.salonName(), staffDisplay),
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    base + "/checkout.html?success=1&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     base + "/checkout.html?canceled=1",
		Metadata:      req.Metadata(),
	}
	if when := req.When(); when != "" {
		params.Description = "Appointment: " + when
	}

	sess, err := s.payments.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.metrics.ObserveCheckout("error")
		s.logger.Error("checkout session creation failed", "error", err, "staff_key", req.StaffKey)
		return "", &ProviderError{Err: err}
	}

	s.metrics.ObserveCheckout("created")
	s.logger.Info("checkout session created", "session_id", sess.ID, "staff_key", req.StaffKey, "start", req.StartISO)
	return sess.URL, nil
}

func (s *Service) redirectBase(requestBase string) string {
	base := strings.TrimSpace(s.config.SiteURL)
	if base == "" {
		base = strings.TrimSpace(requestBase)
	}
	return strings.TrimRight(base, "/")
}

func (s *Service) salonName() string {
	if name := strings.TrimSpace(s.config.SalonName); name != "" {
		return name
	}
	return "Salon"
}
