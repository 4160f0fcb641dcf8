package calendar

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/copacabanabeauty/salon-booking/internal/observability/metrics"
	"github.com/copacabanabeauty/salon-booking/internal/slots"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

var googleTracer = otel.Tracer("salon.internal.calendar.google")

const providerName = "google_calendar"

// Google event ids may only use base32hex characters (0-9, a-v).
var eventIDEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// GoogleClient implements Client on the Calendar v3 API.
type GoogleClient struct {
	svc      *gcal.Service
	timeZone string
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewGoogleClient authenticates with a service-account JSON key. scope is
// usually gcal.CalendarScope; read-only deployments may pass
// gcal.CalendarReadonlyScope.
func NewGoogleClient(ctx context.Context, credentialsJSON []byte, scope string, logger *logging.Logger) (*GoogleClient, error) {
	if len(credentialsJSON) == 0 {
		return nil, errors.New("calendar: empty service account credentials")
	}
	if scope == "" {
		scope = gcal.CalendarScope
	}
	jwtCfg, err := google.JWTConfigFromJSON(credentialsJSON, scope)
	if err != nil {
		return nil, fmt.Errorf("calendar: parse service account: %w", err)
	}
	svc, err := gcal.NewService(ctx, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("calendar: new service: %w", err)
	}
	return NewGoogleClientWithService(svc, logger), nil
}

// NewGoogleClientWithService wraps an already configured service.
func NewGoogleClientWithService(svc *gcal.Service, logger *logging.Logger) *GoogleClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleClient{svc: svc, logger: logger}
}

// WithTimeZone sets the IANA zone sent with queries and new events.
func (c *GoogleClient) WithTimeZone(tz string) *GoogleClient {
	c.timeZone = tz
	return c
}

// WithMetrics records provider call latency.
func (c *GoogleClient) WithMetrics(m *metrics.BookingMetrics) *GoogleClient {
	c.metrics = m
	return c
}

// QueryFreeBusy implements Client.
func (c *GoogleClient) QueryFreeBusy(ctx context.Context, calendarIDs []string, timeMin, timeMax time.Time) (result map[string][]slots.BusyInterval, err error) {
	ctx, span := googleTracer.Start(ctx, "google.freebusy_query", trace.WithAttributes(
		attribute.Int("calendar.count", len(calendarIDs)),
		attribute.String("calendar.time_min", timeMin.Format(time.RFC3339)),
		attribute.String("calendar.time_max", timeMax.Format(time.RFC3339)),
	))
	defer func(start time.Time) { c.finish(span, "freebusy", start, err) }(time.Now())

	items := make([]*gcal.FreeBusyRequestItem, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		items = append(items, &gcal.FreeBusyRequestItem{Id: id})
	}
	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  timeMin.Format(time.RFC3339),
		TimeMax:  timeMax.Format(time.RFC3339),
		TimeZone: c.timeZone,
		Items:    items,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy query: %w", err)
	}

	result = make(map[string][]slots.BusyInterval, len(calendarIDs))
	for _, id := range calendarIDs {
		cal, ok := resp.Calendars[id]
		if !ok {
			return nil, fmt.Errorf("calendar: freebusy response missing calendar %s", id)
		}
		if len(cal.Errors) > 0 {
			return nil, fmt.Errorf("calendar: freebusy %s: %s", id, describeErrors(cal.Errors))
		}
		busy := make([]slots.BusyInterval, 0, len(cal.Busy))
		for _, p := range cal.Busy {
			start, err := time.Parse(time.RFC3339, p.Start)
			if err != nil {
				return nil, fmt.Errorf("calendar: freebusy %s start %q: %w", id, p.Start, err)
			}
			end, err := time.Parse(time.RFC3339, p.End)
			if err != nil {
				return nil, fmt.Errorf("calendar: freebusy %s end %q: %w", id, p.End, err)
			}
			busy = append(busy, slots.BusyInterval{Start: start, End: end})
		}
		result[id] = busy
	}
	return result, nil
}

// ListEvents implements Client. All-day events are read in the client's time
// zone (UTC when unset).
func (c *GoogleClient) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) (events []Event, err error) {
	ctx, span := googleTracer.Start(ctx, "google.events_list", trace.WithAttributes(
		attribute.String("calendar.id", calendarID),
	))
	defer func(start time.Time) { c.finish(span, "events_list", start, err) }(time.Now())

	loc := c.location()
	call := c.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, convErr := fromGoogleEvent(item, loc)
			if convErr != nil {
				return convErr
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: list events %s: %w", calendarID, err)
	}
	return events, nil
}

// CreateEvent implements Client. ev.ID is re-encoded into Google's id
// alphabet; the returned event carries the caller's id.
func (c *GoogleClient) CreateEvent(ctx context.Context, calendarID string, ev Event) (created *Event, err error) {
	ctx, span := googleTracer.Start(ctx, "google.events_insert", trace.WithAttributes(
		attribute.String("calendar.id", calendarID),
		attribute.String("calendar.event_id", ev.ID),
	))
	defer func(start time.Time) {
		if errors.Is(err, ErrEventExists) {
			c.finish(span, "events_insert", start, nil)
			return
		}
		c.finish(span, "events_insert", start, err)
	}(time.Now())

	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: c.timeZone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: c.timeZone},
	}
	if ev.ID != "" {
		body.Id = EncodeEventID(ev.ID)
	}

	resp, err := c.svc.Events.Insert(calendarID, body).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			return nil, ErrEventExists
		}
		return nil, fmt.Errorf("calendar: insert event %s: %w", calendarID, err)
	}

	out := ev
	out.Status = resp.Status
	if out.ID == "" {
		out.ID = resp.Id
	}
	c.logger.Debug("calendar event inserted", "calendar_id", calendarID, "event_id", out.ID, "provider_id", resp.Id)
	return &out, nil
}

// EncodeEventID maps an arbitrary id to the base32hex alphabet Google
// requires. The mapping is deterministic and injective.
func EncodeEventID(id string) string {
	return strings.ToLower(eventIDEncoding.EncodeToString([]byte(id)))
}

// DecodeEventID reverses EncodeEventID. Ids not produced by EncodeEventID
// are returned unchanged.
func DecodeEventID(providerID string) string {
	raw, err := eventIDEncoding.DecodeString(strings.ToUpper(providerID))
	if err != nil || EncodeEventID(string(raw)) != providerID {
		return providerID
	}
	return string(raw)
}

func (c *GoogleClient) finish(span trace.Span, op string, start time.Time, err error) {
	c.metrics.ObserveProviderCall(providerName, op, time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *GoogleClient) location() *time.Location {
	if c.timeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.timeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func fromGoogleEvent(item *gcal.Event, loc *time.Location) (Event, error) {
	start, err := parseEventTime(item.Start, loc)
	if err != nil {
		return Event{}, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, err := parseEventTime(item.End, loc)
	if err != nil {
		return Event{}, fmt.Errorf("event %s end: %w", item.Id, err)
	}
	return Event{
		ID:          DecodeEventID(item.Id),
		Summary:     item.Summary,
		Description: item.Description,
		Start:       start,
		End:         end,
		Status:      item.Status,
		Transparent: item.Transparency == "transparent",
	}, nil
}

func parseEventTime(dt *gcal.EventDateTime, loc *time.Location) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("missing time")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	if dt.Date != "" {
		return time.ParseInLocation("2006-01-02", dt.Date, loc)
	}
	return time.Time{}, errors.New("missing time")
}

func describeErrors(errs []*gcal.Error) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e == nil {
			continue
		}
		parts = append(parts, e.Domain+"/"+e.Reason)
	}
	return strings.Join(parts, ", ")
}
