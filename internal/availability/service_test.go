package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/calendar"
	"github.com/copacabanabeauty/salon-booking/internal/slots"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

type mockCalendar struct {
	mock.Mock
}

func (m *mockCalendar) QueryFreeBusy(ctx context.Context, ids []string, timeMin, timeMax time.Time) (map[string][]slots.BusyInterval, error) {
	args := m.Called(ctx, ids, timeMin, timeMax)
	busy, _ := args.Get(0).(map[string][]slots.BusyInterval)
	return busy, args.Error(1)
}

func (m *mockCalendar) ListEvents(ctx context.Context, id string, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	args := m.Called(ctx, id, timeMin, timeMax)
	events, _ := args.Get(0).([]calendar.Event)
	return events, args.Error(1)
}

func (m *mockCalendar) CreateEvent(ctx context.Context, id string, ev calendar.Event) (*calendar.Event, error) {
	args := m.Called(ctx, id, ev)
	created, _ := args.Get(0).(*calendar.Event)
	return created, args.Error(1)
}

func london(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	return loc
}

func testRoster() *booking.Roster {
	return booking.NewRoster(
		booking.StaffMember{Key: "ana", DisplayName: "Ana Paula", CalendarID: "cal-ana", CalendarSource: "CALENDAR_ID_ANA"},
		booking.StaffMember{Key: "glenda", DisplayName: "Glenda Garcia", CalendarID: "cal-glenda", CalendarSource: "CALENDAR_ID_GLENDA"},
	)
}

func newTestService(t *testing.T, cal calendar.Client, now time.Time) *Service {
	t.Helper()
	return NewService(cal, testRoster(), london(t), logging.Discard()).
		WithClock(func() time.Time { return now })
}

func labels(views []SlotView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Label)
	}
	return out
}

func TestGetAvailability_FreeBusy(t *testing.T) {
	loc := london(t)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)

	cal := &mockCalendar{}
	cal.On("QueryFreeBusy", mock.Anything, []string{"cal-ana", "cal-glenda"}, mock.Anything, mock.Anything).
		Return(map[string][]slots.BusyInterval{
			"cal-ana": {{
				Start: time.Date(2026, 3, 10, 10, 0, 0, 0, loc),
				End:   time.Date(2026, 3, 10, 11, 0, 0, 0, loc),
			}},
			"cal-glenda": {},
		}, nil).Once()

	svc := newTestService(t, cal, now)
	res, err := svc.GetAvailability(context.Background(), Query{Days: 2, Hours: slots.DefaultBusinessHours()})
	require.NoError(t, err)
	cal.AssertExpectations(t)

	args := cal.Calls[0].Arguments
	assert.True(t, args.Get(2).(time.Time).Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, loc)))
	assert.True(t, args.Get(3).(time.Time).Equal(time.Date(2026, 3, 12, 0, 0, 0, 0, loc)))

	assert.Equal(t, "2026-03-10T00:00:00Z", res.Range.TimeMin)
	assert.Equal(t, "2026-03-12T00:00:00Z", res.Range.TimeMax)
	require.Len(t, res.Days, 2)
	assert.Equal(t, "2026-03-10", res.Days[0].Date)
	assert.Equal(t, "2026-03-11", res.Days[1].Date)

	day0 := res.Days[0].PerStaff
	assert.Len(t, day0["ana"], 37-7)
	assert.Contains(t, labels(day0["ana"]), "09:00")
	assert.NotContains(t, labels(day0["ana"]), "09:15")
	assert.Contains(t, labels(day0["ana"]), "11:00")
	assert.Len(t, day0["glenda"], 37)
	assert.Equal(t, labels(day0["ana"]), labels(day0[booking.DuoKey]))

	assert.Len(t, res.Days[1].PerStaff["ana"], 37)
	assert.Equal(t, "2026-03-11T09:00:00Z", res.Days[1].PerStaff["ana"][0].StartISO)
	assert.Equal(t, "2026-03-11T10:00:00Z", res.Days[1].PerStaff["ana"][0].EndISO)
}

func TestGetAvailability_DropsPastSlots(t *testing.T) {
	loc := london(t)
	now := time.Date(2026, 3, 10, 12, 5, 0, 0, loc)

	cal := &mockCalendar{}
	cal.On("QueryFreeBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(map[string][]slots.BusyInterval{}, nil)

	res, err := newTestService(t, cal, now).GetAvailability(context.Background(), Query{Days: 1, Hours: slots.DefaultBusinessHours()})
	require.NoError(t, err)

	got := res.Days[0].PerStaff["glenda"]
	require.Len(t, got, 20)
	assert.Equal(t, "12:15", got[0].Label)
	assert.Equal(t, "17:00", got[len(got)-1].Label)
}

func TestGetAvailability_DuoNeedsEveryoneFree(t *testing.T) {
	loc := london(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)

	cal := &mockCalendar{}
	cal.On("QueryFreeBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(map[string][]slots.BusyInterval{
			"cal-ana":    {{Start: time.Date(2026, 3, 10, 9, 0, 0, 0, loc), End: time.Date(2026, 3, 10, 12, 0, 0, 0, loc)}},
			"cal-glenda": {{Start: time.Date(2026, 3, 10, 12, 0, 0, 0, loc), End: time.Date(2026, 3, 10, 17, 0, 0, 0, loc)}},
		}, nil)

	res, err := newTestService(t, cal, now).GetAvailability(context.Background(), Query{Days: 1, Hours: slots.DefaultBusinessHours()})
	require.NoError(t, err)
	assert.Equal(t, []string{"17:00"}, labels(res.Days[0].PerStaff[booking.DuoKey]))
}

func TestGetAvailability_EventsSource(t *testing.T) {
	loc := london(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)

	cal := &mockCalendar{}
	cal.On("ListEvents", mock.Anything, "cal-ana", mock.Anything, mock.Anything).Return([]calendar.Event{
		{ID: "a", Start: time.Date(2026, 3, 10, 9, 0, 0, 0, loc), End: time.Date(2026, 3, 10, 18, 0, 0, 0, loc), Status: "confirmed"},
	}, nil).Once()
	cal.On("ListEvents", mock.Anything, "cal-glenda", mock.Anything, mock.Anything).Return([]calendar.Event{
		{ID: "b", Start: time.Date(2026, 3, 10, 9, 0, 0, 0, loc), End: time.Date(2026, 3, 10, 18, 0, 0, 0, loc), Status: "cancelled"},
	}, nil).Once()

	svc := newTestService(t, cal, now).WithSource(SourceEvents)
	res, err := svc.GetAvailability(context.Background(), Query{Days: 1, Hours: slots.DefaultBusinessHours()})
	require.NoError(t, err)
	cal.AssertExpectations(t)
	cal.AssertNotCalled(t, "QueryFreeBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	assert.Empty(t, res.Days[0].PerStaff["ana"])
	assert.Len(t, res.Days[0].PerStaff["glenda"], 37)
}

func TestGetAvailability_ConfigErrorsBeforeProviderCall(t *testing.T) {
	loc := london(t)
	now := time.Now()

	t.Run("no calendar client", func(t *testing.T) {
		svc := NewService(nil, testRoster(), loc, logging.Discard())
		_, err := svc.GetAvailability(context.Background(), Query{Days: 1, Hours: slots.DefaultBusinessHours()})
		var cfgErr *booking.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "GOOGLE_SERVICE_ACCOUNT_JSON", cfgErr.Field)
	})

	t.Run("missing calendar id", func(t *testing.T) {
		cal := &mockCalendar{}
		roster := booking.NewRoster(
			booking.StaffMember{Key: "ana", CalendarID: "cal-ana", CalendarSource: "CALENDAR_ID_ANA"},
			booking.StaffMember{Key: "glenda", CalendarSource: "CALENDAR_ID_GLENDA"},
		)
		svc := NewService(cal, roster, loc, logging.Discard()).WithClock(func() time.Time { return now })
		_, err := svc.GetAvailability(context.Background(), Query{Days: 1, Hours: slots.DefaultBusinessHours()})
		var cfgErr *booking.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "CALENDAR_ID_GLENDA", cfgErr.Field)
		cal.AssertNotCalled(t, "QueryFreeBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetAvailability_ProviderFailureIsTotal(t *testing.T) {
	cal := &mockCalendar{}
	cal.On("QueryFreeBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("calendar: freebusy cal-glenda: global/notFound"))

	res, err := newTestService(t, cal, time.Now()).GetAvailability(context.Background(), Query{Days: 3, Hours: slots.DefaultBusinessHours()})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, IsRetrievalError(err))
	assert.Contains(t, err.Error(), "global/notFound")
}

func TestGetAvailability_InvalidHours(t *testing.T) {
	cal := &mockCalendar{}
	_, err := newTestService(t, cal, time.Now()).GetAvailability(context.Background(), Query{
		Days:  1,
		Hours: slots.BusinessHours{StartHour: 18, EndHour: 9, StepMinutes: 15, DurationMinutes: 60},
	})
	assert.True(t, booking.IsValidationError(err))
	cal.AssertNotCalled(t, "QueryFreeBusy", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, SourceEvents, ParseSource("events"))
	assert.Equal(t, SourceFreeBusy, ParseSource("freebusy"))
	assert.Equal(t, SourceFreeBusy, ParseSource(""))
}
