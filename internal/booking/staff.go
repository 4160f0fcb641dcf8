// Package booking holds the salon's booking vocabulary: the staff roster, the
// booking request carried through payment metadata, and the deterministic
// calendar event id used to make confirmation idempotent.
package booking

import (
	"strings"
)

// DuoKey books every roster member for the same slot.
const DuoKey = "duo"

// DuoDisplayName is the fixed label shown for DuoKey.
const DuoDisplayName = "DUO Service"

// StaffMember is a bookable stylist.
type StaffMember struct {
	Key         string
	DisplayName string
	CalendarID  string
	// CalendarSource names the setting CalendarID was read from, so a missing
	// id is reported by name.
	CalendarSource string
}

// Roster is the ordered, static list of staff.
type Roster struct {
	members []StaffMember
}

// NewRoster builds a roster. Keys are normalised to lower case; later
// duplicates replace earlier entries in place.
func NewRoster(members ...StaffMember) *Roster {
	r := &Roster{}
	index := map[string]int{}
	for _, m := range members {
		m.Key = normalizeKey(m.Key)
		if m.Key == "" {
			continue
		}
		if i, ok := index[m.Key]; ok {
			r.members[i] = m
			continue
		}
		index[m.Key] = len(r.members)
		r.members = append(r.members, m)
	}
	return r
}

// Members returns a copy of the roster in configured order.
func (r *Roster) Members() []StaffMember {
	if r == nil {
		return nil
	}
	out := make([]StaffMember, len(r.members))
	copy(out, r.members)
	return out
}

// Lookup finds a staff member by key.
func (r *Roster) Lookup(key string) (StaffMember, bool) {
	if r == nil {
		return StaffMember{}, false
	}
	key = normalizeKey(key)
	for _, m := range r.members {
		if m.Key == key {
			return m, true
		}
	}
	return StaffMember{}, false
}

// RequireCalendars returns a ConfigError for the first member without a
// calendar id.
func (r *Roster) RequireCalendars() error {
	if r == nil || len(r.members) == 0 {
		return &ConfigError{Field: "staff roster"}
	}
	for _, m := range r.members {
		if strings.TrimSpace(m.CalendarID) == "" {
			field := m.CalendarSource
			if field == "" {
				field = "calendar id for " + m.Key
			}
			return &ConfigError{Field: field}
		}
	}
	return nil
}

// CalendarsFor maps a staff key to the calendars that must receive the
// booking. DuoKey resolves to every roster calendar. Unknown keys and members
// without a calendar return ErrUnknownStaff.
func (r *Roster) CalendarsFor(key string) ([]string, error) {
	key = normalizeKey(key)
	if key == DuoKey {
		members := r.Members()
		if len(members) < 2 {
			return nil, ErrUnknownStaff
		}
		ids := make([]string, 0, len(members))
		for _, m := range members {
			if m.CalendarID == "" {
				return nil, ErrUnknownStaff
			}
			ids = append(ids, m.CalendarID)
		}
		return ids, nil
	}
	m, ok := r.Lookup(key)
	if !ok || m.CalendarID == "" {
		return nil, ErrUnknownStaff
	}
	return []string{m.CalendarID}, nil
}

// DisplayName resolves the label shown to customers and written to the
// calendar. DuoKey always maps to DuoDisplayName; otherwise an explicit name
// wins, then the roster, then the raw key.
func (r *Roster) DisplayName(key, explicit string) string {
	norm := normalizeKey(key)
	if norm == DuoKey {
		return DuoDisplayName
	}
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}
	if m, ok := r.Lookup(norm); ok && m.DisplayName != "" {
		return m.DisplayName
	}
	if norm != "" {
		return norm
	}
	return "Staff"
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
