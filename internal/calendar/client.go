// Package calendar adapts Google Calendar to the operations the booking flow
// needs: busy lookups over a range and event creation under a caller-chosen
// id.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/copacabanabeauty/salon-booking/internal/slots"
)

// ErrEventExists is returned by CreateEvent when an event with the requested
// id is already on the calendar.
var ErrEventExists = errors.New("calendar: event already exists")

// Event is the subset of a calendar event the service reads and writes.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Status      string
	// Transparent events do not block time.
	Transparent bool
}

// Client is the calendar collaborator.
type Client interface {
	// QueryFreeBusy returns busy intervals keyed by calendar id for
	// [timeMin, timeMax) in a single provider call.
	QueryFreeBusy(ctx context.Context, calendarIDs []string, timeMin, timeMax time.Time) (map[string][]slots.BusyInterval, error)
	// ListEvents returns the expanded events overlapping [timeMin, timeMax).
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error)
	// CreateEvent inserts ev. A non-empty ev.ID is used as the provider key and
	// ErrEventExists is returned if it is taken.
	CreateEvent(ctx context.Context, calendarID string, ev Event) (*Event, error)
}

// BusyFromEvents turns listed events into busy intervals, skipping cancelled
// and transparent events.
func BusyFromEvents(events []Event) []slots.BusyInterval {
	var out []slots.BusyInterval
	for _, ev := range events {
		if ev.Status == "cancelled" || ev.Transparent {
			continue
		}
		if !ev.End.After(ev.Start) {
			continue
		}
		out = append(out, slots.BusyInterval{Start: ev.Start, End: ev.End})
	}
	return out
}
