package availability

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
	"github.com/copacabanabeauty/salon-booking/internal/slots"
	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

// Handler serves GET /api/availability.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an availability handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type response struct {
	OK    bool   `json:"ok"`
	Range *Range `json:"range,omitempty"`
	Days  []Day  `json:"days,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServeHTTP handles availability queries.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}

	result, err := h.service.GetAvailability(r.Context(), q)
	if err != nil {
		status := http.StatusInternalServerError
		if booking.IsValidationError(err) {
			status = http.StatusBadRequest
		} else {
			h.logger.Error("availability request failed", "error", err, "days", q.Days)
		}
		writeJSON(w, status, response{OK: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, response{OK: true, Range: &result.Range, Days: result.Days})
}

func parseQuery(r *http.Request) (Query, error) {
	values := r.URL.Query()
	hours := slots.DefaultBusinessHours()
	q := Query{Days: DefaultDays}

	fields := []struct {
		name string
		dst  *int
	}{
		{"days", &q.Days},
		{"startHour", &hours.StartHour},
		{"endHour", &hours.EndHour},
		{"step", &hours.StepMinutes},
		{"duration", &hours.DurationMinutes},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(values.Get(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Query{}, booking.Invalid("invalid %s: %q", f.name, raw)
		}
		*f.dst = v
	}

	if q.Days < 1 {
		q.Days = 1
	}
	if q.Days > MaxDays {
		q.Days = MaxDays
	}
	q.Hours = hours
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
