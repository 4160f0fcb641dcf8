// Package webhook confirms paid deposits by writing the booking into the
// stylist's calendar. The calendar event id is derived from the payment
// session id, so redelivered events converge on a single booking.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/calendar"
	"github.com/copacabanabeauty/salon-booking/internal/observability/metrics"
	"github.com/copacabanabeauty/salon-booking/internal/payments"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

var tracer = otel.Tracer("salon.internal.webhook")

// Outcome statuses.
const (
	StatusCreated   = "created"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
)

// Reasons attached to ignored outcomes.
const (
	ReasonEventType       = "event_type"
	ReasonNotPaid         = "not_paid"
	ReasonMissingMetadata = "missing_metadata"
	ReasonInvalidStaff    = "invalid_staff"
)

// Outcome is the result of reconciling one delivery.
type Outcome struct {
	Status    string
	Reason    string
	EventType string
	SessionID string
	EventID   string
	// Calendars lists the calendars written (created or already present).
	Calendars []string
}

func ignored(evtType, sessionID, reason string) Outcome {
	return Outcome{Status: StatusIgnored, Reason: reason, EventType: evtType, SessionID: sessionID}
}

// Reconciler verifies webhook deliveries and writes confirmed bookings.
type Reconciler struct {
	verifier payments.WebhookVerifier
	calendar calendar.Client
	roster   *booking.Roster
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewReconciler builds a Reconciler. A nil verifier means no webhook secret
// is configured and every delivery fails with a ConfigError. A nil calendar
// fails paid bookings the same way while still acknowledging ignorable events.
func NewReconciler(verifier payments.WebhookVerifier, cal calendar.Client, roster *booking.Roster, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		verifier: verifier,
		calendar: cal,
		roster:   roster,
		logger:   logger,
	}
}

// WithMetrics enables webhook outcome counters.
func (r *Reconciler) WithMetrics(m *metrics.BookingMetrics) *Reconciler {
	r.metrics = m
	return r
}

// Reconcile verifies the raw payload against its signature header and
// processes the event. Signature failures wrap payments.ErrInvalidSignature.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if r.verifier == nil {
		r.metrics.ObserveWebhook("config_error")
		return Outcome{}, &booking.ConfigError{Field: "STRIPE_WEBHOOK_SECRET"}
	}

	evt, err := r.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		r.metrics.ObserveWebhook("invalid_signature")
		r.logger.Warn("webhook signature verification failed", "error", err)
		if !errors.Is(err, payments.ErrInvalidSignature) {
			err = fmt.Errorf("%w: %v", payments.ErrInvalidSignature, err)
		}
		return Outcome{}, err
	}

	out, err := r.Process(ctx, evt)
	if err != nil {
		r.metrics.ObserveWebhook("error")
		return out, err
	}
	if out.Status == StatusIgnored {
		r.metrics.ObserveWebhook(out.Reason)
	} else {
		r.metrics.ObserveWebhook(out.Status)
	}
	return out, nil
}

// Process runs a verified event through the filter, paid, metadata and staff
// checks, then creates the calendar event(s) idempotently.
func (r *Reconciler) Process(ctx context.Context, evt *payments.WebhookEvent) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "webhook.process")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.event_type", evt.Type), attribute.String("stripe.event_id", evt.ID))

	if evt.Type != payments.EventCheckoutCompleted || evt.Session == nil {
		r.logger.Debug("ignoring webhook event", "event_type", evt.Type, "event_id", evt.ID)
		return ignored(evt.Type, "", ReasonEventType), nil
	}

	sess := evt.Session
	log := r.logger.With("session_id", sess.ID, "event_type", evt.Type)
	if sess.PaymentStatus != payments.StatusPaid {
		log.Info("ignoring unpaid checkout session", "payment_status", sess.PaymentStatus)
		return ignored(evt.Type, sess.ID, ReasonNotPaid), nil
	}

	appt, err := booking.AppointmentFromMetadata(sess.Metadata)
	if err != nil {
		log.Error("checkout session metadata unusable", "error", err, "metadata", sess.Metadata)
		return ignored(evt.Type, sess.ID, ReasonMissingMetadata), nil
	}

	calendarIDs, err := r.roster.CalendarsFor(appt.StaffKey)
	if err != nil {
		log.Error("checkout session has unknown staff", "staff_key", appt.StaffKey)
		return ignored(evt.Type, sess.ID, ReasonInvalidStaff), nil
	}

	if r.calendar == nil {
		return Outcome{}, &booking.ConfigError{Field: "GOOGLE_SERVICE_ACCOUNT_JSON"}
	}

	eventID, err := booking.DeriveEventID(sess.ID)
	if err != nil {
		log.Error("cannot derive event id", "error", err)
		return ignored(evt.Type, sess.ID, ReasonMissingMetadata), nil
	}
	span.SetAttributes(attribute.String("calendar.event_id", eventID))
	log = log.With("event_id", eventID)

	ev := r.buildEvent(eventID, sess, appt)
	out := Outcome{Status: StatusDuplicate, EventType: evt.Type, SessionID: sess.ID, EventID: eventID}
	for _, calID := range calendarIDs {
		_, err := r.calendar.CreateEvent(ctx, calID, ev)
		switch {
		case errors.Is(err, calendar.ErrEventExists):
			log.Info("booking already on calendar", "calendar_id", calID)
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error("calendar event creation failed", "calendar_id", calID, "error", err)
			return Outcome{}, fmt.Errorf("webhook: create event on %s: %w", calID, err)
		default:
			out.Status = StatusCreated
			log.Info("booking confirmed", "calendar_id", calID, "staff_key", appt.StaffKey)
		}
		out.Calendars = append(out.Calendars, calID)
	}
	return out, nil
}

func (r *Reconciler) buildEvent(eventID string, sess *payments.Session, appt booking.Appointment) calendar.Event {
	req := appt.Request
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = strings.TrimSpace(sess.CustomerEmail)
	}
	name := strings.TrimSpace(req.CustomerName)

	who := name
	if who == "" {
		who = email
	}
	if who == "" {
		who = "Client"
	}

	staff := strings.TrimSpace(req.StaffName)
	if staff == "" {
		staff = r.roster.DisplayName(req.StaffKey, "")
	}

	description := strings.Join([]string{
		"Staff: " + staff,
		"Client: " + name,
		"Email: " + email,
		"Stripe session: " + sess.ID,
		"Event id: " + eventID,
	}, "\n")

	return calendar.Event{
		ID:          eventID,
		Summary:     "Booking - " + who,
		Description: description,
		Start:       appt.Start,
		End:         appt.End,
	}
}
