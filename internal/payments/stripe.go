package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/copacabanabeauty/salon-booking/internal/observability/metrics"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

var stripeTracer = otel.Tracer("salon.internal.payments.stripe")

const providerName = "stripe"

// StripeConfig configures the Stripe client.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint (for testing).
	BaseURL    string
	HTTPClient *http.Client
	// DryRun returns fake checkout URLs without calling Stripe.
	DryRun bool
}

// StripeClient implements Client and WebhookVerifier with stripe-go.
type StripeClient struct {
	api           *client.API
	webhookSecret string
	dryRun        bool
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics
}

// NewStripeClient builds a client. Network retries are disabled: retrying is
// left to the webhook sender or the customer.
func NewStripeClient(cfg StripeConfig, logger *logging.Logger) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &leveledLogger{logger: logger},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	if cfg.HTTPClient != nil {
		backendCfg.HTTPClient = cfg.HTTPClient
	} else {
		backendCfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &StripeClient{
		api: client.New(cfg.SecretKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		webhookSecret: cfg.WebhookSecret,
		dryRun:        cfg.DryRun,
		logger:        logger,
	}
}

// WithMetrics records provider call latency.
func (c *StripeClient) WithMetrics(m *metrics.BookingMetrics) *StripeClient {
	c.metrics = m
	return c
}

// CreateCheckoutSession implements Client.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (sess *Session, err error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session", trace.WithAttributes(
		attribute.Int64("salon.amount_minor", p.AmountMinor),
		attribute.String("salon.currency", p.Currency),
	))
	defer func(start time.Time) { c.finish(span, "create_session", start, err) }(time.Now())

	if c.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		c.logger.Info("stripe dry run: skipping checkout session creation", "session_id", fakeID, "amount_minor", p.AmountMinor)
		return &Session{
			ID:            fakeID,
			URL:           "https://checkout.stripe.com/dry-run/" + fakeID,
			PaymentStatus: StatusUnpaid,
			CustomerEmail: p.CustomerEmail,
			Metadata:      p.Metadata,
		}, nil
	}

	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(p.ProductName),
	}
	if strings.TrimSpace(p.Description) != "" {
		product.Description = stripe.String(p.Description)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(p.CustomerEmail),
		SuccessURL:    stripe.String(p.SuccessURL),
		CancelURL:     stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(p.Currency),
				UnitAmount:  stripe.Int64(p.AmountMinor),
				ProductData: product,
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	created, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe create session: %w", err)
	}
	if created.URL == "" {
		return nil, errors.New("payments: stripe response missing checkout url")
	}
	span.SetAttributes(attribute.String("salon.session_id", created.ID))
	return fromStripeSession(created), nil
}

// RetrieveSession implements Client.
func (c *StripeClient) RetrieveSession(ctx context.Context, id string) (sess *Session, err error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_checkout_session", trace.WithAttributes(
		attribute.String("salon.session_id", id),
	))
	defer func(start time.Time) { c.finish(span, "retrieve_session", start, err) }(time.Now())

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	got, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("payments: stripe retrieve session: %w", err)
	}
	return fromStripeSession(got), nil
}

// VerifyWebhook implements WebhookVerifier. The account's API version may
// differ from the library's, so version mismatches are tolerated; the
// session fields read here are stable across versions.
func (c *StripeClient) VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{ID: evt.ID, Type: string(evt.Type)}
	if strings.HasPrefix(out.Type, "checkout.session.") && evt.Data != nil {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		out.Session = fromStripeSession(&cs)
	}
	return out, nil
}

func (c *StripeClient) finish(span trace.Span, op string, start time.Time, err error) {
	c.metrics.ObserveProviderCall(providerName, op, time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func fromStripeSession(cs *stripe.CheckoutSession) *Session {
	email := cs.CustomerEmail
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		email = cs.CustomerDetails.Email
	}
	md := cs.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		PaymentStatus: string(cs.PaymentStatus),
		CustomerEmail: email,
		Metadata:      md,
	}
}

// leveledLogger routes stripe-go's internal logging through slog.
type leveledLogger struct {
	logger *logging.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
