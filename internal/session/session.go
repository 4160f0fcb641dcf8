// Package session reads checkout sessions back for the confirmation page.
package session

import (
	"context"
	"strings"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/payments"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

// View is what the confirmation page sees.
type View struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

// Lookup retrieves sessions from the payment provider.
type Lookup struct {
	payments payments.Client
	logger   *logging.Logger
}

// NewLookup builds a Lookup. client may be nil when STRIPE_SECRET_KEY is
// unset.
func NewLookup(client payments.Client, logger *logging.Logger) *Lookup {
	if logger == nil {
		logger = logging.Default()
	}
	return &Lookup{payments: client, logger: logger}
}

// GetSession returns the session view for id.
func (l *Lookup) GetSession(ctx context.Context, id string) (*View, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, booking.Invalid("Missing session_id")
	}
	if l.payments == nil {
		return nil, &booking.ConfigError{Field: "STRIPE_SECRET_KEY"}
	}

	sess, err := l.payments.RetrieveSession(ctx, id)
	if err != nil {
		return nil, err
	}

	md := sess.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return &View{
		ID:            sess.ID,
		PaymentStatus: sess.PaymentStatus,
		CustomerEmail: sess.CustomerEmail,
		Metadata:      md,
	}, nil
}
