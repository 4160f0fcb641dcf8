package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Metadata keys written to the payment session. The payment provider only
// stores strings, so every field is carried in its string form.
const (
	MetaStaffKey      = "staffKey"
	MetaStaffName     = "staffName"
	MetaDate          = "date"
	MetaStartISO      = "startISO"
	MetaEndISO        = "endISO"
	MetaLabel         = "label"
	MetaDurationMin   = "durationMin"
	MetaCustomerName  = "customerName"
	MetaCustomerEmail = "customerEmail"
)

// Request is a booking travelling from the checkout form, through payment
// session metadata, to the webhook.
type Request struct {
	StaffKey        string
	StaffName       string
	Date            string
	StartISO        string
	EndISO          string
	Label           string
	DurationMinutes int
	CustomerName    string
	CustomerEmail   string
}

// Validate checks the fields required before a deposit can be taken.
func (r Request) Validate() error {
	if strings.TrimSpace(r.StaffKey) == "" || strings.TrimSpace(r.StartISO) == "" || strings.TrimSpace(r.EndISO) == "" {
		return Invalid("Missing booking data.")
	}
	if strings.TrimSpace(r.CustomerEmail) == "" {
		return Invalid("Email is required.")
	}
	if _, _, err := r.Times(); err != nil {
		return Invalid("%s", err.Error())
	}
	if r.DurationMinutes < 0 {
		return Invalid("durationMinutes must not be negative")
	}
	return nil
}

// Times parses the booking window.
func (r Request) Times() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(r.StartISO))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid startISO %q", r.StartISO)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(r.EndISO))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid endISO %q", r.EndISO)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("endISO must be after startISO")
	}
	return start, end, nil
}

// When renders "date · label", skipping empty parts.
func (r Request) When() string {
	var parts []string
	if d := strings.TrimSpace(r.Date); d != "" {
		parts = append(parts, d)
	}
	if l := strings.TrimSpace(r.Label); l != "" {
		parts = append(parts, l)
	}
	return strings.Join(parts, " · ")
}

// Metadata serialises the request for the payment session.
func (r Request) Metadata() map[string]string {
	duration := ""
	if r.DurationMinutes > 0 {
		duration = strconv.Itoa(r.DurationMinutes)
	}
	return map[string]string{
		MetaStaffKey:      r.StaffKey,
		MetaStaffName:     r.StaffName,
		MetaDate:          r.Date,
		MetaStartISO:      r.StartISO,
		MetaEndISO:        r.EndISO,
		MetaLabel:         r.Label,
		MetaDurationMin:   duration,
		MetaCustomerName:  r.CustomerName,
		MetaCustomerEmail: r.CustomerEmail,
	}
}

// Appointment is a decoded booking whose window has already been parsed.
type Appointment struct {
	Request
	Start time.Time
	End   time.Time
}

// AppointmentFromMetadata rebuilds a booking from payment session metadata and
// parses its window. It returns ErrMissingMetadata when staffKey, startISO or
// endISO is absent and ErrMalformedMetadata when a typed field does not parse.
func AppointmentFromMetadata(md map[string]string) (Appointment, error) {
	r := Request{
		StaffKey:      strings.TrimSpace(md[MetaStaffKey]),
		StaffName:     md[MetaStaffName],
		Date:          md[MetaDate],
		StartISO:      strings.TrimSpace(md[MetaStartISO]),
		EndISO:        strings.TrimSpace(md[MetaEndISO]),
		Label:         md[MetaLabel],
		CustomerName:  md[MetaCustomerName],
		CustomerEmail: md[MetaCustomerEmail],
	}

	var missing []string
	if r.StaffKey == "" {
		missing = append(missing, MetaStaffKey)
	}
	if r.StartISO == "" {
		missing = append(missing, MetaStartISO)
	}
	if r.EndISO == "" {
		missing = append(missing, MetaEndISO)
	}
	if len(missing) > 0 {
		return Appointment{Request: r}, fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}

	if raw := strings.TrimSpace(md[MetaDurationMin]); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			return Appointment{Request: r}, fmt.Errorf("%w: %s=%q", ErrMalformedMetadata, MetaDurationMin, raw)
		}
		r.DurationMinutes = d
	}
	start, end, err := r.Times()
	if err != nil {
		return Appointment{Request: r}, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	return Appointment{Request: r, Start: start, End: end}, nil
}
