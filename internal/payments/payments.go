// Package payments wraps the Stripe Checkout calls the booking flow depends on:
// creating a deposit session, reading it back, and verifying webhooks.
package payments

import (
	"context"
	"errors"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails
	// verification. Such payloads must not be trusted.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")

	// ErrSessionNotFound is returned when the provider has no such session.
	ErrSessionNotFound = errors.New("payments: session not found")
)

// Payment status values reported on a checkout session.
const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// EventCheckoutCompleted is the only webhook type that confirms bookings.
const EventCheckoutCompleted = "checkout.session.completed"

// Session is the subset of a checkout session the service uses.
type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	CustomerEmail string
	Metadata      map[string]string
}

// CheckoutParams describes a single-line-item deposit session.
type CheckoutParams struct {
	AmountMinor   int64
	Currency      string
	ProductName   string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// WebhookEvent is a verified provider event. Session is set for
// checkout.session.* events.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *Session
}

// Client creates and reads checkout sessions.
type Client interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
}

// WebhookVerifier authenticates raw webhook deliveries.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}
