// Package availability computes bookable slots per stylist from calendar busy
// time.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/calendar"
	"github.com/copacabanabeauty/salon-booking/internal/observability/metrics"
	"github.com/copacabanabeauty/salon-booking/internal/slots"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

var tracer = otel.Tracer("salon.internal.availability")

// Source selects how busy time is read from the calendar.
type Source string

const (
	// SourceFreeBusy uses one batched freebusy query.
	SourceFreeBusy Source = "freebusy"
	// SourceEvents lists events per calendar, skipping cancelled and
	// transparent ones.
	SourceEvents Source = "events"
)

const (
	DefaultDays = 14
	MaxDays     = 60
)

// ParseSource maps a config value to a Source, defaulting to freebusy.
func ParseSource(v string) Source {
	if Source(v) == SourceEvents {
		return SourceEvents
	}
	return SourceFreeBusy
}

// RetrievalError wraps a failed busy lookup. No partial result accompanies it.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("availability: retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Query selects the range and slot shape.
type Query struct {
	Days  int
	Hours slots.BusinessHours
}

// SlotView is a slot as returned to clients.
type SlotView struct {
	Label    string `json:"label"`
	StartISO string `json:"startISO"`
	EndISO   string `json:"endISO"`
}

// Day lists free slots per staff key for one calendar day.
type Day struct {
	Date     string                `json:"date"`
	PerStaff map[string][]SlotView `json:"perStaff"`
}

// Range is the queried window.
type Range struct {
	TimeMin string `json:"timeMin"`
	TimeMax string `json:"timeMax"`
}

// Result is the full availability answer.
type Result struct {
	Range Range `json:"range"`
	Days  []Day `json:"days"`
}

// Service computes availability.
type Service struct {
	calendar calendar.Client
	roster   *booking.Roster
	loc      *time.Location
	source   Source
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewService builds a Service. cal may be nil when credentials are not
// configured; requests then fail with a ConfigError.
func NewService(cal calendar.Client, roster *booking.Roster, loc *time.Location, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		calendar: cal,
		roster:   roster,
		loc:      loc,
		source:   SourceFreeBusy,
		now:      time.Now,
		logger:   logger,
	}
}

// WithSource switches the busy-time strategy.
func (s *Service) WithSource(src Source) *Service {
	s.source = src
	return s
}

// WithClock overrides the current time (for testing).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics enables availability counters.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// GetAvailability returns free slots for every roster member, plus a duo entry
// when two or more members are configured.
func (s *Service) GetAvailability(ctx context.Context, q Query) (*Result, error) {
	ctx, span := tracer.Start(ctx, "availability.get")
	defer span.End()

	if q.Days <= 0 {
		q.Days = DefaultDays
	}
	if q.Days > MaxDays {
		q.Days = MaxDays
	}
	span.SetAttributes(attribute.Int("availability.days", q.Days), attribute.String("availability.source", string(s.source)))

	if err := q.Hours.Validate(); err != nil {
		s.metrics.ObserveAvailability("invalid")
		return nil, booking.Invalid("%v", err)
	}
	if s.calendar == nil {
		s.metrics.ObserveAvailability("config_error")
		return nil, &booking.ConfigError{Field: "GOOGLE_SERVICE_ACCOUNT_JSON"}
	}
	if err := s.roster.RequireCalendars(); err != nil {
		s.metrics.ObserveAvailability("config_error")
		return nil, err
	}

	now := s.now().In(s.loc)
	timeMin := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	timeMax := timeMin.AddDate(0, 0, q.Days)

	members := s.roster.Members()
	busy, err := s.fetchBusy(ctx, members, timeMin, timeMax)
	if err != nil {
		s.metrics.ObserveAvailability("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("availability lookup failed", "error", err, "source", s.source)
		return nil, &RetrievalError{Err: err}
	}

	var duoBusy []slots.BusyInterval
	withDuo := len(members) >= 2
	if withDuo {
		lists := make([][]slots.BusyInterval, 0, len(members))
		for _, m := range members {
			lists = append(lists, busy[m.CalendarID])
		}
		duoBusy = slots.MergeBusy(lists...)
	}

	result := &Result{
		Range: Range{TimeMin: timeMin.Format(time.RFC3339), TimeMax: timeMax.Format(time.RFC3339)},
		Days:  make([]Day, 0, q.Days),
	}
	for i := 0; i < q.Days; i++ {
		day := timeMin.AddDate(0, 0, i)
		candidates := slots.Generate(day, q.Hours)
		d := Day{Date: day.Format("2006-01-02"), PerStaff: make(map[string][]SlotView, len(members)+1)}
		for _, m := range members {
			free := slots.DropBefore(slots.FilterAvailable(candidates, busy[m.CalendarID]), now)
			d.PerStaff[m.Key] = toViews(free)
		}
		if withDuo {
			free := slots.DropBefore(slots.FilterAvailable(candidates, duoBusy), now)
			d.PerStaff[booking.DuoKey] = toViews(free)
		}
		result.Days = append(result.Days, d)
	}

	s.metrics.ObserveAvailability("ok")
	return result, nil
}

func (s *Service) fetchBusy(ctx context.Context, members []booking.StaffMember, timeMin, timeMax time.Time) (map[string][]slots.BusyInterval, error) {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.CalendarID)
	}

	if s.source != SourceEvents {
		busy, err := s.calendar.QueryFreeBusy(ctx, ids, timeMin, timeMax)
		if err != nil {
			return nil, err
		}
		return busy, nil
	}

	busy := make(map[string][]slots.BusyInterval, len(ids))
	for _, id := range ids {
		if _, seen := busy[id]; seen {
			continue
		}
		events, err := s.calendar.ListEvents(ctx, id, timeMin, timeMax)
		if err != nil {
			return nil, err
		}
		busy[id] = calendar.BusyFromEvents(events)
	}
	return busy, nil
}

func toViews(in []slots.Slot) []SlotView {
	out := make([]SlotView, 0, len(in))
	for _, sl := range in {
		out = append(out, SlotView{
			Label:    sl.Label,
			StartISO: sl.Start.Format(time.RFC3339),
			EndISO:   sl.End.Format(time.RFC3339),
		})
	}
	return out
}

// IsRetrievalError reports whether err carries a RetrievalError.
func IsRetrievalError(err error) bool {
	var rErr *RetrievalError
	return errors.As(err, &rErr)
}
