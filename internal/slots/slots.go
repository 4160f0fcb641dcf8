// Package slots turns business hours and busy intervals into bookable slots.
// Nothing here performs I/O.
package slots

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// BusyInterval is a half-open range [Start, End) during which a staff member
// is committed.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Slot is a candidate appointment. Label is the start time as HH:MM in the
// slot's location.
type Slot struct {
	Start time.Time
	End   time.Time
	Label string
}

// BusinessHours controls slot generation for a single day.
type BusinessHours struct {
	StartHour       int
	EndHour         int
	StepMinutes     int
	DurationMinutes int
}

// DefaultBusinessHours matches the salon's opening hours: 09:00-18:00, hour
// long appointments offered every 15 minutes.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		StartHour:       9,
		EndHour:         18,
		StepMinutes:     15,
		DurationMinutes: 60,
	}
}

var (
	ErrInvalidHours    = errors.New("slots: start hour must be before end hour within 0-24")
	ErrInvalidStep     = errors.New("slots: step must be positive and fit within opening hours")
	ErrInvalidDuration = errors.New("slots: duration must be positive and fit within opening hours")
)

// Validate reports why hours cannot produce slots. Step and duration are
// bounded by the opening window so they always convert to a positive
// time.Duration.
func (h BusinessHours) Validate() error {
	if h.StartHour < 0 || h.EndHour > 24 || h.StartHour >= h.EndHour {
		return fmt.Errorf("%w (got %d-%d)", ErrInvalidHours, h.StartHour, h.EndHour)
	}
	window := (h.EndHour - h.StartHour) * 60
	if h.StepMinutes <= 0 || h.StepMinutes > window {
		return fmt.Errorf("%w (got %d, max %d)", ErrInvalidStep, h.StepMinutes, window)
	}
	if h.DurationMinutes <= 0 || h.DurationMinutes > window {
		return fmt.Errorf("%w (got %d, max %d)", ErrInvalidDuration, h.DurationMinutes, window)
	}
	return nil
}

// Generate emits every slot between day@StartHour and day@EndHour, stepping by
// StepMinutes, whose end does not pass day@EndHour. Only the calendar date and
// location of day are used. Invalid hours yield no slots.
func Generate(day time.Time, hours BusinessHours) []Slot {
	if hours.Validate() != nil {
		return nil
	}

	open := atHour(day, hours.StartHour)
	closing := atHour(day, hours.EndHour)
	step := time.Duration(hours.StepMinutes) * time.Minute
	duration := time.Duration(hours.DurationMinutes) * time.Minute

	var out []Slot
	for t := open; !t.After(closing); t = t.Add(step) {
		end := t.Add(duration)
		if end.After(closing) {
			break
		}
		out = append(out, Slot{Start: t, End: end, Label: t.Format("15:04")})
	}
	return out
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching boundaries do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FilterAvailable keeps the slots that overlap none of the busy intervals.
// Order is preserved.
func FilterAvailable(candidates []Slot, busy []BusyInterval) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, s := range candidates {
		if !conflicts(s, busy) {
			out = append(out, s)
		}
	}
	return out
}

func conflicts(s Slot, busy []BusyInterval) bool {
	for _, b := range busy {
		if Overlaps(s.Start, s.End, b.Start, b.End) {
			return true
		}
	}
	return false
}

// DropBefore removes slots starting before cutoff.
func DropBefore(candidates []Slot, cutoff time.Time) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, s := range candidates {
		if !s.Start.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// MergeBusy unions several busy lists into a sorted list of disjoint
// intervals. Adjacent intervals are joined.
func MergeBusy(lists ...[]BusyInterval) []BusyInterval {
	var all []BusyInterval
	for _, l := range lists {
		for _, b := range l {
			if b.End.After(b.Start) {
				all = append(all, b)
			}
		}
	}
	if len(all) == 0 {
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })

	merged := []BusyInterval{all[0]}
	for _, b := range all[1:] {
		last := &merged[len(merged)-1]
		if !b.Start.After(last.End) {
			if b.End.After(last.End) {
				last.End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

func atHour(day time.Time, hour int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, day.Location())
}
